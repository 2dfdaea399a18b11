// Package ir provides the domain types shared by every dispense package.
//
// This package contains type definitions and the canonical JSON encoder only.
// All other internal packages import ir; ir imports nothing internal. This
// keeps ir the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Credits are exact decimals (apd), never float64
//   - Requests are structured records, never delimited strings
//   - Every persisted document is serialized with MarshalCanonical so that
//     stored bytes and golden traces are reproducible
//   - All JSON tags use snake_case
package ir
