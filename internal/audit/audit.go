// Package audit provides the append-only audit log the engine writes to.
//
// A Log stamps each entry with a UUIDv7 id and hands it to a Sink. Sinks
// are the SQLite table (StoreSink), a rotating JSONL file (FileSink), or a
// fan-out of both (Multi). Audit writes never block the primary operation:
// wrap the Log in BestEffort to log and drop failures.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/dispense/internal/ir"
)

// Sink persists audit entries.
type Sink interface {
	Record(ctx context.Context, entry ir.AuditEntry) error
}

// Appender is the audit interface consumed by the engine.
type Appender interface {
	Append(ctx context.Context, subjectID string, at time.Time, message string) error
}

// Log builds audit entries and writes them to a sink.
type Log struct {
	sink  Sink
	newID func() (string, error)
}

// Option configures a Log.
type Option func(*Log)

// WithIDs overrides entry id generation. Used for deterministic output.
func WithIDs(next func() string) Option {
	return func(l *Log) {
		l.newID = func() (string, error) { return next(), nil }
	}
}

// New creates a Log writing to sink.
func New(sink Sink, opts ...Option) *Log {
	l := &Log{sink: sink, newID: newUUIDv7}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Append records one audit entry.
func (l *Log) Append(ctx context.Context, subjectID string, at time.Time, message string) error {
	id, err := l.newID()
	if err != nil {
		return fmt.Errorf("audit: generate id: %w", err)
	}
	entry := ir.AuditEntry{
		ID:        id,
		SubjectID: subjectID,
		Timestamp: at.UTC(),
		Message:   message,
	}
	if err := l.sink.Record(ctx, entry); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// EntryStore is the subset of the store used by StoreSink.
type EntryStore interface {
	AppendAudit(ctx context.Context, entry ir.AuditEntry) error
}

// StoreSink writes entries to the audit_events table.
type StoreSink struct {
	store EntryStore
}

// NewStoreSink creates a sink over s.
func NewStoreSink(s EntryStore) *StoreSink {
	return &StoreSink{store: s}
}

// Record implements Sink.
func (s *StoreSink) Record(ctx context.Context, entry ir.AuditEntry) error {
	return s.store.AppendAudit(ctx, entry)
}

type multi []Sink

// Multi fans an entry out to every sink. All sinks are tried; the errors
// of those that failed are joined.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Record(ctx context.Context, entry ir.AuditEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type bestEffort struct {
	next   Appender
	logger *slog.Logger
}

// BestEffort wraps an Appender so that failures are logged and swallowed.
func BestEffort(next Appender, logger *slog.Logger) Appender {
	if logger == nil {
		logger = slog.Default()
	}
	return &bestEffort{next: next, logger: logger}
}

func (b *bestEffort) Append(ctx context.Context, subjectID string, at time.Time, message string) error {
	if err := b.next.Append(ctx, subjectID, at, message); err != nil {
		b.logger.Warn("audit append failed",
			"subject", subjectID,
			"message", message,
			"error", err)
	}
	return nil
}
