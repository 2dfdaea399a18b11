package engine

import (
	"context"
	"errors"

	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/ledger"
	"github.com/roach88/dispense/internal/registry"
	"github.com/roach88/dispense/internal/store"
)

// Status is the caller-facing outcome of Initiate.
type Status string

const (
	StatusAccepted          Status = "accepted"
	StatusAlreadyInProgress Status = "already_in_progress"
	StatusDeclined          Status = "declined"
	StatusNotFound          Status = "not_found"
	StatusMalformed         Status = "malformed"
	StatusFailed            Status = "failed"
)

// Result is returned to the caller of Initiate.
type Result struct {
	Status    Status `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Credits   string `json:"credits,omitempty"`
}

// Initiate handles a caller's request to actuate a subject.
//
// The returned error is nil for accepted, declined and already-in-progress
// results; declining is an expected outcome, not a failure. Otherwise it is
// an *Error whose code matches the status.
func (e *Engine) Initiate(ctx context.Context, req ir.InitiateRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		e.logger.Warn("initiate rejected", "subject", req.SubjectID, "error", err)
		return Result{Status: StatusMalformed, Message: "request could not be processed"},
			newMalformed(req.SubjectID, err)
	}
	subjectID := req.SubjectID
	command := e.policy.Command

	budget := newAttemptBudget(subjectID, e.maxAttempts)
	for budget.Next() {
		now := e.clock.Now()

		rec, err := e.store.Get(ctx, subjectID)
		if errors.Is(err, store.ErrNotFound) {
			e.logger.Info("initiate for unknown subject", "subject", subjectID)
			return Result{Status: StatusNotFound, Message: msgNotFound(subjectID)}, newNotFound(subjectID, err)
		}
		if err != nil {
			return e.initiateFailed(subjectID, "load record", err)
		}
		credits := ledger.Format(&rec.Credits)

		if !ledger.Covers(&rec.Credits, e.policy.MinimumBalance) {
			msg := msgInsufficient(subjectID, &rec.Credits, e.policy.MinimumBalance)
			e.logger.Info("initiate declined: insufficient credits",
				"subject", subjectID,
				"credits", credits)
			e.appendAudit(ctx, subjectID, now, auditError(msg))
			return Result{Status: StatusDeclined, Message: msg, Credits: credits}, nil
		}

		requests := rec.Requests
		if pending, ok := registry.Find(requests, command); ok {
			if !registry.IsStale(pending, now, e.policy.StalenessWindow) {
				msg := msgInProgress(pending.RequestID)
				e.logger.Info("initiate declined: request in progress",
					"subject", subjectID,
					"request_id", pending.RequestID,
					"age", registry.Age(pending, now))
				e.appendAudit(ctx, subjectID, now, auditError(msg))
				return Result{
					Status:    StatusAlreadyInProgress,
					Message:   msg,
					RequestID: pending.RequestID,
					Credits:   credits,
				}, nil
			}
			e.logger.Info("evicting stale request",
				"subject", subjectID,
				"request_id", pending.RequestID,
				"age", registry.Age(pending, now))
			requests = registry.Remove(requests, command)
		}

		requestID := e.ids.Generate()
		next := rec
		next.Requests = registry.Append(requests, ir.Request{
			RequestID: requestID,
			Command:   command,
			CreatedAt: now,
			Target:    ir.DefaultTarget,
		})

		if _, err := e.store.Put(ctx, next); err != nil {
			if errors.Is(err, store.ErrConflict) {
				e.logger.Debug("initiate write conflicted, retrying",
					"subject", subjectID,
					"attempt", budget.Current())
				continue
			}
			return e.initiateFailed(subjectID, "persist record", err)
		}

		if err := e.channel.SendCommand(ctx, subjectID, command, requestID, now); err != nil {
			// The request stays recorded and is superseded once stale.
			return e.initiateFailed(subjectID, "send command", err)
		}

		e.logger.Info("request initiated",
			"subject", subjectID,
			"request_id", requestID)
		e.appendAudit(ctx, subjectID, now, msgInitiated(requestID))
		return Result{
			Status:    StatusAccepted,
			Message:   msgAccepted(subjectID),
			RequestID: requestID,
			Credits:   credits,
		}, nil
	}

	return e.initiateFailed(subjectID, "persist record",
		budget.Exhausted())
}

func (e *Engine) initiateFailed(subjectID, op string, err error) (Result, error) {
	e.logger.Error("initiate failed",
		"subject", subjectID,
		"op", op,
		"error", err)
	return Result{Status: StatusFailed, Message: "request could not be processed"},
		newTransport(subjectID, op, err)
}
