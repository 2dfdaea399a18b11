package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/dispense/internal/config"
	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/ledger"
	"github.com/roach88/dispense/internal/requestid"
	"github.com/roach88/dispense/internal/signal"
)

// RecordStore loads and conditionally replaces subject records.
//
// Get returns an error wrapping store.ErrNotFound for an unknown subject.
// Put writes only if rec.Version matches the stored version and returns
// an error wrapping store.ErrConflict otherwise.
type RecordStore interface {
	Get(ctx context.Context, subjectID string) (ir.Record, error)
	Put(ctx context.Context, rec ir.Record) (ir.Record, error)
}

// ActuationChannel carries commands to a device. Calls are fire-and-forget:
// a nil error means the channel accepted the write, not that the device
// acted on it.
type ActuationChannel interface {
	SendCommand(ctx context.Context, subjectID, command, requestID string, at time.Time) error
	SetOutputSignal(ctx context.Context, subjectID string, sig signal.Signal) error
	ClearOutcome(ctx context.Context, subjectID string) error
	ClearCommand(ctx context.Context, subjectID string) error
	Publish(ctx context.Context, topic, message string) error
}

// AuditLog is the append-only audit sink. Failures are logged and ignored.
type AuditLog interface {
	Append(ctx context.Context, subjectID string, at time.Time, message string) error
}

// DefaultMaxAttempts bounds the conditional-write retry loop when neither
// the policy nor WithMaxAttempts sets it.
const DefaultMaxAttempts = 3

// Engine is the reconciliation engine. It holds no per-subject state; an
// Engine is safe for concurrent use as long as its collaborators are.
type Engine struct {
	store   RecordStore
	channel ActuationChannel
	audit   AuditLog

	clock       Clock
	ids         requestid.Generator
	policy      config.Policy
	ledger      *ledger.Ledger
	logger      *slog.Logger
	maxAttempts int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRequestIDs sets the request id generator. Default: requestid.Random.
func WithRequestIDs(g requestid.Generator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithPolicy sets the business policy. Default: config.DefaultPolicy().
func WithPolicy(p config.Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMaxAttempts overrides the policy's conditional-write attempt limit.
// Use WithMaxAttempts(1) to surface the first conflict in tests.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		e.maxAttempts = n
	}
}

// New creates an Engine over its three collaborators.
func New(store RecordStore, channel ActuationChannel, audit AuditLog, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		channel: channel,
		audit:   audit,
		clock:   SystemClock{},
		ids:     requestid.Random{},
		policy:  config.DefaultPolicy(),
		ledger:  ledger.New(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.maxAttempts <= 0 {
		e.maxAttempts = e.policy.MaxAttempts
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = DefaultMaxAttempts
	}
	return e
}

// Policy returns the policy the engine enforces.
func (e *Engine) Policy() config.Policy {
	return e.policy
}

// appendAudit writes an audit entry, logging and dropping any failure.
func (e *Engine) appendAudit(ctx context.Context, subjectID string, at time.Time, message string) {
	if err := e.audit.Append(ctx, subjectID, at, message); err != nil {
		e.logger.Warn("audit append failed",
			"subject", subjectID,
			"error", err)
	}
}
