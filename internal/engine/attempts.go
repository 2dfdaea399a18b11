package engine

import (
	"errors"
	"fmt"
)

// attemptBudget bounds the conditional-write retry loop of a single
// Initiate or Reconcile call.
//
// Each loop iteration reloads the record, so a conflict costs one attempt
// and the next attempt sees the concurrent writer's state.
type attemptBudget struct {
	subjectID string
	max       int
	current   int
}

func newAttemptBudget(subjectID string, max int) *attemptBudget {
	return &attemptBudget{subjectID: subjectID, max: max}
}

// Next consumes one attempt and reports whether it was within budget.
func (b *attemptBudget) Next() bool {
	if b.current >= b.max {
		return false
	}
	b.current++
	return true
}

// Current returns the 1-based number of the attempt in progress.
func (b *attemptBudget) Current() int {
	return b.current
}

// Exhausted returns the error describing a spent budget.
func (b *attemptBudget) Exhausted() error {
	return &AttemptsExhaustedError{SubjectID: b.subjectID, Attempts: b.current}
}

// AttemptsExhaustedError is the cause of a TRANSPORT_FAILURE raised when
// every conditional write lost to a concurrent writer.
type AttemptsExhaustedError struct {
	SubjectID string
	Attempts  int
}

func (e *AttemptsExhaustedError) Error() string {
	return fmt.Sprintf("subject %s: %d conditional writes conflicted", e.SubjectID, e.Attempts)
}

// IsAttemptsExhausted reports whether err was caused by write conflicts.
func IsAttemptsExhausted(err error) bool {
	var ae *AttemptsExhaustedError
	return errors.As(err, &ae)
}
