// Package signal maps a remaining credit balance to the device's LED ring.
//
// The ring has MaxCount LEDs. The mapping is a pure, table-driven function
// of the exact decimal balance:
//
//	credits         LEDs lit            Color
//	=============== =================== ==================
//	0               8                   alert   #FF0000
//	0.01 - 0.24     0                   neutral #F0F0F0
//	0.25 - 0.49     2                   neutral #F0F0F0
//	0.50 - 0.74     4                   neutral #F0F0F0
//	0.75 - 0.99     6                   neutral #F0F0F0
//	1.00 - 1.99     1                   tier1   #006600
//	2.00 - 2.99     2                   tier2   #009900
//	3.00 - 3.99     3                   tier3   #00E600
//	4.00 - 7.99     4-7                 tier4   #00FF00
//	8.00 >          8                   tier4   #00FF00
//
// A negative balance can only come from a bug upstream; it renders as alert
// so the device shows the same state as an empty balance.
package signal

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// MaxCount is the number of LEDs on the ring.
const MaxCount = 8

// Color is a signal color class.
type Color string

const (
	ColorAlert   Color = "alert"
	ColorNeutral Color = "neutral"
	ColorTier1   Color = "tier1"
	ColorTier2   Color = "tier2"
	ColorTier3   Color = "tier3"
	ColorTier4   Color = "tier4"
)

var hexByColor = map[Color]string{
	ColorAlert:   "#FF0000",
	ColorNeutral: "#F0F0F0",
	ColorTier1:   "#006600",
	ColorTier2:   "#009900",
	ColorTier3:   "#00E600",
	ColorTier4:   "#00FF00",
}

// Hex returns the RGB value the device renders for c.
func (c Color) Hex() string {
	return hexByColor[c]
}

// ParseColor accepts a color class name or its hex value.
func ParseColor(s string) (Color, error) {
	if _, ok := hexByColor[Color(s)]; ok {
		return Color(s), nil
	}
	for c, hex := range hexByColor {
		if hex == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("signal: unknown color %q", s)
}

// Signal is the discrete (count, color) indicator shown on the ring.
type Signal struct {
	Count int   `json:"count"`
	Color Color `json:"color"`
}

// String renders the signal as "count/color".
func (s Signal) String() string {
	return fmt.Sprintf("%d/%s", s.Count, s.Color)
}

// band is one whole-credit row of the mapping table.
type band struct {
	min   *apd.Decimal
	color Color
}

// bands is ordered from the highest threshold down.
var bands = []band{
	{min: apd.New(4, 0), color: ColorTier4},
	{min: apd.New(3, 0), color: ColorTier3},
	{min: apd.New(2, 0), color: ColorTier2},
	{min: apd.New(1, 0), color: ColorTier1},
}

var (
	maxCountDecimal = apd.New(MaxCount, 0)
	quarterSteps    = apd.New(4, 0)
	decimalCtx      = apd.BaseContext.WithPrecision(34)
)

// Map returns the signal for a remaining balance.
func Map(remaining *apd.Decimal) Signal {
	if remaining.Sign() <= 0 {
		return Signal{Count: MaxCount, Color: ColorAlert}
	}

	for _, b := range bands {
		if remaining.Cmp(b.min) < 0 {
			continue
		}
		if remaining.Cmp(maxCountDecimal) >= 0 {
			return Signal{Count: MaxCount, Color: b.color}
		}
		return Signal{Count: floorInt(remaining), Color: b.color}
	}

	// 0 < remaining < 1: two LEDs per whole quarter.
	var quarters apd.Decimal
	if _, err := decimalCtx.Mul(&quarters, remaining, quarterSteps); err != nil {
		return Signal{Count: 0, Color: ColorNeutral}
	}
	return Signal{Count: floorInt(&quarters) * 2, Color: ColorNeutral}
}

// floorInt returns floor(d) for 0 <= d < MaxCount.
func floorInt(d *apd.Decimal) int {
	var f apd.Decimal
	if _, err := decimalCtx.Floor(&f, d); err != nil {
		return 0
	}
	n, err := f.Int64()
	if err != nil {
		return 0
	}
	return int(n)
}
