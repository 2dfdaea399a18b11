package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/dispense/internal/ir"
)

// GetShadow returns a device's shadow documents.
// A device that was never written has an empty shadow at version 0.
func (s *Store) GetShadow(ctx context.Context, subjectID string) (ir.Shadow, error) {
	var desired, reported string
	sh := ir.Shadow{SubjectID: subjectID}

	err := s.db.QueryRowContext(ctx, `
		SELECT desired, reported, version FROM shadows WHERE subject_id = ?
	`, subjectID).Scan(&desired, &reported, &sh.Version)
	if errors.Is(err, sql.ErrNoRows) {
		sh.Desired = map[string]any{}
		sh.Reported = map[string]any{}
		return sh, nil
	}
	if err != nil {
		return ir.Shadow{}, fmt.Errorf("get shadow %s: %w", subjectID, err)
	}

	if sh.Desired, err = ir.UnmarshalDocument(desired); err != nil {
		return ir.Shadow{}, fmt.Errorf("get shadow %s: %w", subjectID, err)
	}
	if sh.Reported, err = ir.UnmarshalDocument(reported); err != nil {
		return ir.Shadow{}, fmt.Errorf("get shadow %s: %w", subjectID, err)
	}
	return sh, nil
}

// UpdateShadow merges desired and reported patches into a device's shadow
// and returns the result. A nil patch leaves that document unchanged.
//
// Read and write happen in one transaction; with a single connection the
// merge cannot interleave with another update.
func (s *Store) UpdateShadow(ctx context.Context, subjectID string, desired, reported map[string]any) (ir.Shadow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Shadow{}, fmt.Errorf("update shadow %s: begin transaction: %w", subjectID, err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after Commit is a no-op

	var desiredJSON, reportedJSON string
	var version int64
	err = tx.QueryRowContext(ctx, `
		SELECT desired, reported, version FROM shadows WHERE subject_id = ?
	`, subjectID).Scan(&desiredJSON, &reportedJSON, &version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ir.Shadow{}, fmt.Errorf("update shadow %s: %w", subjectID, err)
	}

	sh := ir.Shadow{SubjectID: subjectID, Version: version + 1}
	if sh.Desired, err = ir.UnmarshalDocument(desiredJSON); err != nil {
		return ir.Shadow{}, fmt.Errorf("update shadow %s: %w", subjectID, err)
	}
	if sh.Reported, err = ir.UnmarshalDocument(reportedJSON); err != nil {
		return ir.Shadow{}, fmt.Errorf("update shadow %s: %w", subjectID, err)
	}
	sh.Desired = mergePatch(sh.Desired, desired)
	sh.Reported = mergePatch(sh.Reported, reported)

	if desiredJSON, err = marshalDocument(sh.Desired); err != nil {
		return ir.Shadow{}, fmt.Errorf("update shadow %s: %w", subjectID, err)
	}
	if reportedJSON, err = marshalDocument(sh.Reported); err != nil {
		return ir.Shadow{}, fmt.Errorf("update shadow %s: %w", subjectID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shadows (subject_id, desired, reported, version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			desired = excluded.desired,
			reported = excluded.reported,
			version = excluded.version
	`, subjectID, desiredJSON, reportedJSON, sh.Version)
	if err != nil {
		return ir.Shadow{}, fmt.Errorf("update shadow %s: %w", subjectID, err)
	}

	if err := tx.Commit(); err != nil {
		return ir.Shadow{}, fmt.Errorf("update shadow %s: commit: %w", subjectID, err)
	}
	return sh, nil
}
