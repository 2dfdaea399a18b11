// Package harness runs YAML scenarios against the full dispense stack.
//
// Each scenario gets a fresh in-memory SQLite store, the shadow actuation
// channel, the store-backed audit log and the real engine. Time and request
// ids are deterministic, so the recorded trace is byte-stable and can be
// compared against a golden file.
//
// # Scenario Format
//
//	name: success_debit
//	description: "A matched success debits one credit"
//	request_ids: ["0042-1337"]       # optional; default 0000-0001, 0000-0002, ...
//	start: "2024-01-01T00:00:00Z"    # optional clock start
//	policy:                          # optional overrides, validated as CUE
//	  staleness_window: "10s"
//	subjects:
//	  - {id: d1, credits: "2.00"}
//	steps:
//	  - initiate: d1
//	    expect: {status: accepted, request_id: "0042-1337"}
//	  - advance: 2s
//	  - report: {subject: d1, request_id: "0042-1337", result: success}
//	    expect: {disposition: succeeded, credits: "1.00", signal: "1/tier1"}
//	  - credit: {subject: d1, amount: "5.00"}
//	assertions:
//	  - {type: credits, subject: d1, equals: "1.00"}
//	  - {type: requests, subject: d1, count: 0}
//	  - {type: commands, subject: d1, count: 1}
//	  - {type: signal, subject: d1, count: 1, color: tier1}
//	  - {type: events, subject: d1, count: 1}
//	  - {type: audit_contains, subject: d1, text: "deducted"}
//
// A report step plays the device: it writes the outcome into the shadow,
// reconciles the resulting update, then reconciles every follow-up update
// the channel queued (the clearing write), which the engine ignores.
//
// # Trace
//
// Every step appends one event, followed by one "channel" event per
// actuation channel call it caused and one "reconcile" event per queued
// follow-up update. The trace is serialised as canonical JSON.
package harness
