package core

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LICODX/rnr-network/pkg/utils"
)

func TestCheckedArithmetic(t *testing.T) {
	one := NewAmount(1)

	tests := []struct {
		name    string
		fn      func() (*uint256.Int, error)
		want    string
		wantErr error
	}{
		{"add", func() (*uint256.Int, error) { return AddAmount(NewAmount(2), NewAmount(3)) }, "5", nil},
		{"add at max", func() (*uint256.Int, error) { return AddAmount(MaxAmount, Zero()) }, MaxAmount.ToBig().String(), nil},
		{"add overflow", func() (*uint256.Int, error) { return AddAmount(MaxAmount, one) }, "", utils.ErrArithmeticOverflow},
		{"sub", func() (*uint256.Int, error) { return SubAmount(NewAmount(5), NewAmount(3)) }, "2", nil},
		{"sub underflow", func() (*uint256.Int, error) { return SubAmount(NewAmount(3), NewAmount(5)) }, "", utils.ErrArithmeticOverflow},
		{"mul", func() (*uint256.Int, error) { return MulAmount(NewAmount(6), NewAmount(7)) }, "42", nil},
		{"mul overflow", func() (*uint256.Int, error) { return MulAmount(MaxAmount, NewAmount(2)) }, "", utils.ErrArithmeticOverflow},
		{"muldiv truncates", func() (*uint256.Int, error) { return MulDivAmount(NewAmount(1), NewAmount(100), NewAmount(3)) }, "33", nil},
		{"muldiv wide product", func() (*uint256.Int, error) { return MulDivAmount(MaxAmount, NewAmount(4), NewAmount(8)) }, new(big.Int).Rsh(MaxAmount.ToBig(), 1).String(), nil},
		{"muldiv by zero", func() (*uint256.Int, error) { return MulDivAmount(one, one, Zero()) }, "", utils.ErrArithmeticOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatAmount(got))
		})
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("340282366920938463463374607431768211455")
	require.NoError(t, err)
	assert.True(t, v.Eq(MaxAmount))

	_, err = ParseAmount("340282366920938463463374607431768211456")
	assert.ErrorIs(t, err, utils.ErrArithmeticOverflow)

	_, err = ParseAmount("-1")
	assert.ErrorIs(t, err, utils.ErrInvalidAmount)

	_, err = ParseAmount("ten")
	assert.ErrorIs(t, err, utils.ErrInvalidAmount)
}

func TestCheckBoost(t *testing.T) {
	assert.NoError(t, CheckBoost(MaxBoost))
	assert.NoError(t, CheckBoost(MinBoost))
	assert.ErrorIs(t, CheckBoost(new(big.Int).Add(MaxBoost, big.NewInt(1))), utils.ErrArithmeticOverflow)
	assert.ErrorIs(t, CheckBoost(new(big.Int).Sub(MinBoost, big.NewInt(1))), utils.ErrArithmeticOverflow)
}

func TestCycleUnpaid(t *testing.T) {
	c := NewCycle(1, 0)
	c.Pool = NewAmount(300)
	c.Paid = NewAmount(100)
	assert.Equal(t, uint64(200), c.Unpaid().Uint64())

	c.Paid = NewAmount(400)
	assert.True(t, c.Unpaid().IsZero())
}
