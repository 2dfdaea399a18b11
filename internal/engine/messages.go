package engine

import (
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/dispense/internal/ledger"
)

// Audit and caller-facing message texts. Operators grep for these; keep
// the wording stable.

func msgInitiated(requestID string) string {
	return fmt.Sprintf("Dispense: Successful request to dispense initiated, requestId: %s", requestID)
}

func msgAccepted(subjectID string) string {
	return fmt.Sprintf("Dispenser %s requested to be activated", subjectID)
}

func msgInsufficient(subjectID string, balance, minimum *apd.Decimal) string {
	return fmt.Sprintf("dispenser: %s only has $%s credits, at least $%s required to activate dispenser",
		subjectID, ledger.Format(balance), ledger.Format(minimum))
}

func msgInProgress(requestID string) string {
	return fmt.Sprintf("request %s already in progress", requestID)
}

func msgNotFound(subjectID string) string {
	return fmt.Sprintf("dispenser %s not found", subjectID)
}

func msgSucceeded(requestID string, elapsed time.Duration, debit *apd.Decimal) string {
	return fmt.Sprintf("Dispense: Successfully dispensed for request %s after %s seconds, $%s deducted from credits",
		requestID, seconds(elapsed), ledger.Format(debit))
}

func msgFailed(requestID string, elapsed time.Duration) string {
	return fmt.Sprintf("Dispense: ERROR, did not dispense for request %s after %s seconds, dispenser reported failure. No credits deducted",
		requestID, seconds(elapsed))
}

func msgMismatch(reported, stored string) string {
	return fmt.Sprintf("Dispense: ERROR, dispenser requestId %s does not match stored request %s, reset request state and NO credits deducted",
		reported, stored)
}

func msgUnmatched(requestID string) string {
	return fmt.Sprintf("Dispense: ERROR, requestId: %s not found in Dispenser database, no action taken", requestID)
}

func auditError(msg string) string {
	return "Dispense: ERROR: " + msg
}

// seconds renders a duration as seconds with two decimals ("1.25").
func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2f", d.Seconds())
}
