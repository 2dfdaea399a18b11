package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/ledger"
)

const selectSubject = `
	SELECT subject_id, credits, requests, version
	FROM subjects
`

// Get loads a subject record. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, subjectID string) (ir.Record, error) {
	row := s.db.QueryRowContext(ctx, selectSubject+` WHERE subject_id = ?`, subjectID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, fmt.Errorf("get %s: %w", subjectID, ErrNotFound)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("get %s: %w", subjectID, err)
	}
	return rec, nil
}

// Put replaces a subject record wholesale, conditional on rec.Version.
//
// Version 0 inserts and fails with ErrConflict if the subject already
// exists. Any other version updates only if the stored version still
// matches. The returned record carries the new version.
func (s *Store) Put(ctx context.Context, rec ir.Record) (ir.Record, error) {
	requests, err := ir.MarshalRequests(rec.Requests)
	if err != nil {
		return ir.Record{}, fmt.Errorf("put %s: %w", rec.SubjectID, err)
	}
	credits := marshalCredits(&rec.Credits)

	var res sql.Result
	if rec.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO subjects (subject_id, credits, requests, version, updated_at)
			VALUES (?, ?, ?, 1, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
			ON CONFLICT(subject_id) DO NOTHING
		`, rec.SubjectID, credits, requests)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE subjects
			SET credits = ?, requests = ?, version = version + 1,
			    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
			WHERE subject_id = ? AND version = ?
		`, credits, requests, rec.SubjectID, rec.Version)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("put %s: %w", rec.SubjectID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return ir.Record{}, fmt.Errorf("put %s: %w", rec.SubjectID, err)
	}
	if n == 0 {
		return ir.Record{}, fmt.Errorf("put %s at version %d: %w", rec.SubjectID, rec.Version, ErrConflict)
	}

	out := rec
	out.Requests = append([]ir.Request(nil), rec.Requests...)
	out.Version = rec.Version + 1
	return out, nil
}

// Create inserts a new subject with the given balance and no requests.
func (s *Store) Create(ctx context.Context, subjectID string, credits *apd.Decimal) (ir.Record, error) {
	if subjectID == "" {
		return ir.Record{}, errors.New("create: empty subject id")
	}
	if credits.Sign() < 0 {
		return ir.Record{}, fmt.Errorf("create %s: %w", subjectID, ledger.ErrNegativeAmount)
	}
	rec := ir.Record{SubjectID: subjectID, Requests: []ir.Request{}}
	rec.Credits.Set(credits)

	out, err := s.Put(ctx, rec)
	if errors.Is(err, ErrConflict) {
		return ir.Record{}, fmt.Errorf("create %s: %w", subjectID, ErrExists)
	}
	return out, err
}

// AddCredits tops up a subject's balance.
//
// Runs as a conditional write and retries on conflict, so a top-up racing
// an engine invocation is never lost.
func (s *Store) AddCredits(ctx context.Context, subjectID string, amount *apd.Decimal) (ir.Record, error) {
	l := ledger.New()

	const maxAttempts = 5
	for attempt := 1; ; attempt++ {
		rec, err := s.Get(ctx, subjectID)
		if err != nil {
			return ir.Record{}, err
		}
		next, err := l.Credit(&rec.Credits, amount)
		if err != nil {
			return ir.Record{}, fmt.Errorf("add credits %s: %w", subjectID, err)
		}
		rec.Credits.Set(next)

		out, err := s.Put(ctx, rec)
		if errors.Is(err, ErrConflict) && attempt < maxAttempts {
			continue
		}
		return out, err
	}
}

// ListSubjects returns every subject record ordered by id.
func (s *Store) ListSubjects(ctx context.Context) ([]ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectSubject+` ORDER BY subject_id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var out []ir.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list subjects: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (ir.Record, error) {
	var (
		rec      ir.Record
		credits  string
		requests string
	)
	if err := row.Scan(&rec.SubjectID, &credits, &requests, &rec.Version); err != nil {
		return ir.Record{}, err
	}
	c, err := unmarshalCredits(credits)
	if err != nil {
		return ir.Record{}, err
	}
	rec.Credits = c
	rec.Requests, err = ir.UnmarshalRequests(requests)
	if err != nil {
		return ir.Record{}, err
	}
	return rec, nil
}
