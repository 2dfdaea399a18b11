// Package engine reconciles credit-gated actuation requests.
//
// The engine has two entry points that share no in-memory state:
//
//   - Initiate (caller-facing): checks the balance, deduplicates against an
//     outstanding request, records a new request and sends the command.
//   - Reconcile (asynchronous): matches a device-reported outcome to the
//     outstanding request, then debits, refreshes the output signal and
//     clears the request.
//
// Both load the subject record fresh from the RecordStore on every call.
//
// STATE MACHINE (per subject, per tracked command):
//
//	Idle --initiate--> Pending --age >= window--> Stale --initiate--> Pending
//	Pending --reconcile--> Reconciled-{Success,Failure,Mismatch} --> Idle
//
// CONDITIONAL WRITES:
// Every persist is a RecordStore.Put carrying the version that was loaded.
// When another invocation wrote first the store returns store.ErrConflict;
// the engine reloads and re-runs the whole decision, at most MaxAttempts
// times, then gives up with TRANSPORT_FAILURE. Side effects (command send,
// signal, publish, audit) run only after the persist that justified them
// succeeded, so a lost race never leaves a command without a request.
//
// FAILURE HANDLING:
// Collaborator failures after a successful persist are logged and not
// retried; the persisted state is not rolled back. Audit failures never
// fail an invocation.
package engine
