package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/ledger"
	"github.com/roach88/dispense/internal/registry"
	"github.com/roach88/dispense/internal/signal"
	"github.com/roach88/dispense/internal/store"
)

// Disposition is what Reconcile did with an outcome.
type Disposition string

const (
	// DispositionIgnored: the envelope carried no outcome (clearing write).
	DispositionIgnored Disposition = "ignored"
	// DispositionUnmatched: no request was outstanding.
	DispositionUnmatched Disposition = "unmatched"
	// DispositionMismatch: the outstanding request had another id; it was removed.
	DispositionMismatch Disposition = "mismatch"
	// DispositionSucceeded: matched success; credits debited.
	DispositionSucceeded Disposition = "succeeded"
	// DispositionFailed: matched device failure; no debit.
	DispositionFailed Disposition = "failed"
	// DispositionAborted: malformed input, unknown subject or store failure.
	DispositionAborted Disposition = "aborted"
)

// Reconciliation reports the effect of one Reconcile call.
type Reconciliation struct {
	Disposition Disposition   `json:"disposition"`
	SubjectID   string        `json:"subject_id,omitempty"`
	RequestID   string        `json:"request_id,omitempty"`
	Credits     string        `json:"credits,omitempty"`
	Signal      signal.Signal `json:"signal,omitzero"`
	Elapsed     time.Duration `json:"elapsed,omitempty"`
	Err         error         `json:"-"`
}

// Reconcile applies a device-reported outcome.
//
// There is no caller to answer on this path: errors are logged and absorbed,
// and surface only through the returned Reconciliation.
func (e *Engine) Reconcile(ctx context.Context, env ir.OutcomeEnvelope) Reconciliation {
	if env.Empty() {
		subjectID, _ := env.Subject()
		e.logger.Debug("ignoring update without outcome", "subject", subjectID, "topic", env.Topic)
		return Reconciliation{Disposition: DispositionIgnored, SubjectID: subjectID}
	}

	subjectID, err := env.Subject()
	if err != nil {
		return e.reconcileAborted(env.SubjectID, newMalformed(env.SubjectID, err))
	}
	if err := env.Validate(); err != nil {
		return e.reconcileAborted(subjectID, newMalformed(subjectID, err))
	}
	outcome := *env.Outcome
	command := e.policy.Command

	budget := newAttemptBudget(subjectID, e.maxAttempts)
	for budget.Next() {
		now := e.clock.Now()

		rec, err := e.store.Get(ctx, subjectID)
		if errors.Is(err, store.ErrNotFound) {
			return e.reconcileAborted(subjectID, newNotFound(subjectID, err))
		}
		if err != nil {
			return e.reconcileAborted(subjectID, newTransport(subjectID, "load record", err))
		}

		pending, ok := registry.Find(rec.Requests, command)
		if !ok {
			e.logger.Warn("outcome for subject with no outstanding request",
				"subject", subjectID,
				"request_id", outcome.RequestID)
			e.appendAudit(ctx, subjectID, now, msgUnmatched(outcome.RequestID))
			return Reconciliation{
				Disposition: DispositionUnmatched,
				SubjectID:   subjectID,
				RequestID:   outcome.RequestID,
				Credits:     ledger.Format(&rec.Credits),
			}
		}

		elapsed := registry.Age(pending, now)
		next := rec
		next.Requests = registry.Remove(rec.Requests, command)

		var (
			disposition Disposition
			balance     = &rec.Credits
		)
		switch {
		case pending.RequestID != outcome.RequestID:
			disposition = DispositionMismatch
		case outcome.Result == ir.ResultSuccess:
			disposition = DispositionSucceeded
			balance, err = e.ledger.Decrement(&rec.Credits, e.policy.DebitAmount)
			if errors.Is(err, ledger.ErrOverdraft) {
				e.logger.Error("debit left balance below zero",
					"subject", subjectID,
					"request_id", pending.RequestID,
					"error", err)
			} else if err != nil {
				return e.reconcileAborted(subjectID, newTransport(subjectID, "debit", err))
			}
			next.Credits = apd.Decimal{}
			next.Credits.Set(balance)
		default:
			disposition = DispositionFailed
		}

		if _, err := e.store.Put(ctx, next); err != nil {
			if errors.Is(err, store.ErrConflict) {
				e.logger.Debug("reconcile write conflicted, retrying",
					"subject", subjectID,
					"attempt", budget.Current())
				continue
			}
			return e.reconcileAborted(subjectID, newTransport(subjectID, "persist record", err))
		}

		r := Reconciliation{
			Disposition: disposition,
			SubjectID:   subjectID,
			RequestID:   outcome.RequestID,
			Credits:     ledger.Format(balance),
			Elapsed:     elapsed,
		}
		switch disposition {
		case DispositionMismatch:
			e.logger.Warn("outcome does not match outstanding request",
				"subject", subjectID,
				"request_id", outcome.RequestID,
				"stored_request_id", pending.RequestID)
			e.appendAudit(ctx, subjectID, now, msgMismatch(outcome.RequestID, pending.RequestID))
		case DispositionSucceeded:
			r.Signal = e.applySuccess(ctx, subjectID, pending.RequestID, balance, elapsed, now)
		case DispositionFailed:
			e.applyFailure(ctx, subjectID, pending.RequestID, elapsed, now)
		}
		return r
	}

	return e.reconcileAborted(subjectID, newTransport(subjectID, "persist record",
		budget.Exhausted()))
}

// applySuccess runs the post-persist side effects of a matched success.
func (e *Engine) applySuccess(ctx context.Context, subjectID, requestID string, balance *apd.Decimal, elapsed time.Duration, now time.Time) signal.Signal {
	sig := signal.Map(balance)
	msg := msgSucceeded(requestID, elapsed, e.policy.DebitAmount)

	e.sideEffect(subjectID, "set output signal", e.channel.SetOutputSignal(ctx, subjectID, sig))
	e.sideEffect(subjectID, "clear command", e.channel.ClearCommand(ctx, subjectID))
	e.sideEffect(subjectID, "clear outcome", e.channel.ClearOutcome(ctx, subjectID))
	e.sideEffect(subjectID, "publish", e.channel.Publish(ctx, e.policy.EventsTopic(subjectID), msg))

	e.logger.Info("request succeeded",
		"subject", subjectID,
		"request_id", requestID,
		"credits", ledger.Format(balance),
		"signal", sig.String(),
		"elapsed", elapsed)
	e.appendAudit(ctx, subjectID, now, msg)
	return sig
}

// applyFailure runs the post-persist side effects of a matched failure.
func (e *Engine) applyFailure(ctx context.Context, subjectID, requestID string, elapsed time.Duration, now time.Time) {
	e.sideEffect(subjectID, "clear command", e.channel.ClearCommand(ctx, subjectID))
	e.sideEffect(subjectID, "clear outcome", e.channel.ClearOutcome(ctx, subjectID))

	e.logger.Warn("device reported failure",
		"subject", subjectID,
		"request_id", requestID,
		"elapsed", elapsed)
	e.appendAudit(ctx, subjectID, now, msgFailed(requestID, elapsed))
}

// sideEffect logs a failed channel call. The record is already persisted,
// so the failure is neither retried nor rolled back.
func (e *Engine) sideEffect(subjectID, op string, err error) {
	if err != nil {
		e.logger.Error("actuation channel call failed",
			"subject", subjectID,
			"op", op,
			"error", err)
	}
}

func (e *Engine) reconcileAborted(subjectID string, err *Error) Reconciliation {
	e.logger.Error("reconcile aborted",
		"subject", subjectID,
		"code", string(err.Code),
		"error", err)
	return Reconciliation{Disposition: DispositionAborted, SubjectID: subjectID, Err: err}
}
