// Package ledger owns credit arithmetic.
//
// Balances are exact decimals (cockroachdb/apd). Binary floating point is
// never used for a stored balance: 2.00 - 1.00 is exactly 1.00.
package ledger

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Precision matches decimal128, far more than any credit balance needs.
const Precision = 34

var (
	// ErrNegativeAmount is returned when a debit or credit amount is below zero.
	ErrNegativeAmount = errors.New("ledger: negative amount")

	// ErrOverdraft is returned alongside the computed balance when a debit
	// leaves the balance below zero. Callers guard with Covers first, so
	// seeing it means a precondition was skipped.
	ErrOverdraft = errors.New("ledger: balance below zero")
)

// Ledger performs exact decimal balance arithmetic.
// A Ledger is safe for concurrent use; the apd context is read-only.
type Ledger struct {
	ctx *apd.Context
}

// New returns a ledger using a Precision-digit half-up context.
func New() *Ledger {
	ctx := apd.BaseContext.WithPrecision(Precision)
	ctx.Rounding = apd.RoundHalfUp
	return &Ledger{ctx: ctx}
}

// Decrement returns balance - amount.
func (l *Ledger) Decrement(balance, amount *apd.Decimal) (*apd.Decimal, error) {
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNegativeAmount, amount.Text('f'))
	}
	out := new(apd.Decimal)
	if _, err := l.ctx.Sub(out, balance, amount); err != nil {
		return nil, fmt.Errorf("ledger: decrement: %w", err)
	}
	if out.Sign() < 0 {
		return out, fmt.Errorf("%w: %s - %s = %s", ErrOverdraft, Format(balance), Format(amount), Format(out))
	}
	return out, nil
}

// Credit returns balance + amount.
func (l *Ledger) Credit(balance, amount *apd.Decimal) (*apd.Decimal, error) {
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNegativeAmount, amount.Text('f'))
	}
	out := new(apd.Decimal)
	if _, err := l.ctx.Add(out, balance, amount); err != nil {
		return nil, fmt.Errorf("ledger: credit: %w", err)
	}
	return out, nil
}

// Covers reports whether balance >= minimum.
func Covers(balance, minimum *apd.Decimal) bool {
	return balance.Cmp(minimum) >= 0
}

// Parse reads a decimal amount such as "2.00".
func Parse(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("ledger: parse %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return nil, fmt.Errorf("ledger: parse %q: not a finite amount", s)
	}
	return d, nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) *apd.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders an amount with exactly two decimal places ("1.00").
func Format(d *apd.Decimal) string {
	ctx := apd.BaseContext.WithPrecision(Precision)
	ctx.Rounding = apd.RoundHalfUp
	var q apd.Decimal
	if _, err := ctx.Quantize(&q, d, -2); err != nil {
		return d.Text('f')
	}
	return q.Text('f')
}
