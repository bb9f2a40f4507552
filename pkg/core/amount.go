package core

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/LICODX/rnr-network/pkg/utils"
)

// Amounts are unsigned 128-bit quantities carried in uint256.Int so that
// intermediate products never wrap. Any result above MaxAmount is an
// overflow and aborts the operation.
var (
	MaxAmount = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

	// Boost is a signed 128-bit quantity.
	MaxBoost = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	MinBoost = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

func Zero() *uint256.Int {
	return new(uint256.Int)
}

func NewAmount(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// ParseAmount parses a base-10 amount and rejects anything outside u128.
func ParseAmount(s string) (*uint256.Int, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 {
		return nil, utils.Wrapf(utils.ErrInvalidAmount, "%q", s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow || v.Gt(MaxAmount) {
		return nil, utils.Wrapf(utils.ErrArithmeticOverflow, "amount %s exceeds 128 bits", s)
	}
	return v, nil
}

func FormatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.ToBig().String()
}

func CheckAmount(v *uint256.Int) error {
	if v.Gt(MaxAmount) {
		return utils.Wrapf(utils.ErrArithmeticOverflow, "%s exceeds 128 bits", FormatAmount(v))
	}
	return nil
}

func AddAmount(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow || z.Gt(MaxAmount) {
		return nil, utils.Wrapf(utils.ErrArithmeticOverflow, "%s + %s", FormatAmount(a), FormatAmount(b))
	}
	return z, nil
}

// SubAmount fails on underflow; callers check sufficiency first and map the
// shortfall to their own resource error.
func SubAmount(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, utils.Wrapf(utils.ErrArithmeticOverflow, "%s - %s", FormatAmount(a), FormatAmount(b))
	}
	return z, nil
}

func MulAmount(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow || z.Gt(MaxAmount) {
		return nil, utils.Wrapf(utils.ErrArithmeticOverflow, "%s * %s", FormatAmount(a), FormatAmount(b))
	}
	return z, nil
}

// MulDivAmount returns floor(a*b/d). The product is formed in 256 bits, so
// only the quotient has to fit in u128.
func MulDivAmount(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", utils.ErrArithmeticOverflow)
	}
	p, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, utils.Wrapf(utils.ErrArithmeticOverflow, "%s * %s", FormatAmount(a), FormatAmount(b))
	}
	z := new(uint256.Int).Div(p, d)
	if err := CheckAmount(z); err != nil {
		return nil, err
	}
	return z, nil
}

// CheckBoost enforces the signed 128-bit range.
func CheckBoost(b *big.Int) error {
	if b.Cmp(MaxBoost) > 0 || b.Cmp(MinBoost) < 0 {
		return utils.Wrapf(utils.ErrArithmeticOverflow, "boost %s exceeds 128 bits", b)
	}
	return nil
}
