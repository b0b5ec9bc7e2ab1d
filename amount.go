package highway

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultDecimals is the number of decimals of the devnet assets.
const DefaultDecimals = 6

var (
	// ErrInvalidAmount is returned for amounts that are negative, too
	// precise or too large.
	ErrInvalidAmount = errors.New("invalid amount")
)

// ParseAmount converts a human readable amount such as "1.25" into base
// units of an asset with the given number of decimals.
func ParseAmount(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %v is negative", ErrInvalidAmount,
			s)
	}

	units := d.Shift(decimals)
	if !units.Equal(units.Truncate(0)) {
		return nil, fmt.Errorf("%w: %v has more than %d decimals",
			ErrInvalidAmount, s, decimals)
	}

	amount, overflow := uint256.FromBig(units.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %v overflows", ErrInvalidAmount, s)
	}

	return amount, nil
}

// FormatAmount renders base units of an asset with the given number of
// decimals.
func FormatAmount(amount *uint256.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}

	return decimal.NewFromBigInt(amount.ToBig(), -decimals).String()
}

// applySlippage moves amount by bps basis points, up if up is set and down
// otherwise.
func applySlippage(amount *uint256.Int, bps uint32, up bool) *uint256.Int {
	factor := uint64(10_000 - bps)
	if up {
		factor = uint64(10_000 + bps)
	}

	out := new(uint256.Int).Mul(amount, uint256.NewInt(factor))
	if up {
		// Round up so the bound is never tighter than intended.
		out.AddUint64(out, 9_999)
	}

	return out.Div(out, uint256.NewInt(10_000))
}
