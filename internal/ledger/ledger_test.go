package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecrement_Exact(t *testing.T) {
	l := New()

	tests := []struct {
		balance, amount, want string
	}{
		{"2.00", "1.00", "1.00"},
		{"1.00", "1.00", "0.00"},
		{"0.30", "0.10", "0.20"},
		{"10.10", "0.01", "10.09"},
		{"100000000000000000.01", "1.00", "99999999999999999.01"},
	}

	for _, tt := range tests {
		t.Run(tt.balance+"-"+tt.amount, func(t *testing.T) {
			got, err := l.Decrement(MustParse(tt.balance), MustParse(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, 0, got.Cmp(MustParse(tt.want)), "got %s", got.Text('f'))
			assert.Equal(t, tt.want, Format(got))
		})
	}
}

func TestDecrement_RepeatedHasNoDrift(t *testing.T) {
	l := New()
	balance := MustParse("10.00")
	step := MustParse("0.10")

	for i := 0; i < 100; i++ {
		next, err := l.Decrement(balance, step)
		require.NoError(t, err, "step %d", i)
		balance = next
	}
	assert.True(t, balance.IsZero(), "got %s", balance.Text('f'))
}

func TestDecrement_Overdraft(t *testing.T) {
	l := New()

	got, err := l.Decrement(MustParse("0.50"), MustParse("1.00"))
	require.ErrorIs(t, err, ErrOverdraft)
	require.NotNil(t, got)
	assert.Equal(t, "-0.50", Format(got))
}

func TestDecrement_NegativeAmount(t *testing.T) {
	_, err := New().Decrement(MustParse("1.00"), MustParse("-1.00"))
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestCredit(t *testing.T) {
	l := New()

	got, err := l.Credit(MustParse("0.50"), MustParse("1.25"))
	require.NoError(t, err)
	assert.Equal(t, "1.75", Format(got))

	_, err = l.Credit(MustParse("0.50"), MustParse("-1"))
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestCovers(t *testing.T) {
	minimum := MustParse("1.00")

	assert.True(t, Covers(MustParse("1.00"), minimum))
	assert.True(t, Covers(MustParse("1"), minimum), "scale must not matter")
	assert.True(t, Covers(MustParse("2.50"), minimum))
	assert.False(t, Covers(MustParse("0.99"), minimum))
	assert.False(t, Covers(MustParse("0"), minimum))
}

func TestParse(t *testing.T) {
	_, err := Parse("abc")
	require.Error(t, err)

	_, err = Parse("NaN")
	require.Error(t, err)

	d, err := Parse("3")
	require.NoError(t, err)
	assert.Equal(t, "3.00", Format(d))
}

func TestFormat_Rounds(t *testing.T) {
	assert.Equal(t, "0.13", Format(MustParse("0.125")))
	assert.Equal(t, "0.00", Format(MustParse("0")))
}
