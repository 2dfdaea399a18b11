package store

import (
	"context"
	"fmt"

	"github.com/roach88/dispense/internal/ir"
)

// AppendAudit inserts an audit entry.
// Uses ON CONFLICT(id) DO NOTHING: writing the same entry twice is a no-op.
func (s *Store) AppendAudit(ctx context.Context, entry ir.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, subject_id, ts, message)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, entry.ID, entry.SubjectID, formatTime(entry.Timestamp), entry.Message)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListAudit returns a subject's audit entries oldest first.
// With limit > 0 only the most recent limit entries are returned.
func (s *Store) ListAudit(ctx context.Context, subjectID string, limit int) ([]ir.AuditEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, ts, message FROM (
			SELECT id, subject_id, ts, message
			FROM audit_events
			WHERE subject_id = ?
			ORDER BY ts DESC, id COLLATE BINARY DESC
			LIMIT ?
		)
		ORDER BY ts ASC, id COLLATE BINARY ASC
	`, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []ir.AuditEntry
	for rows.Next() {
		var (
			e  ir.AuditEntry
			ts string
		)
		if err := rows.Scan(&e.ID, &e.SubjectID, &ts, &e.Message); err != nil {
			return nil, fmt.Errorf("list audit: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("list audit: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return out, nil
}
