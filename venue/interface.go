package venue

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/ledger"
	"github.com/holiman/uint256"
)

var (
	// ErrDeadlineExpired is returned when a trade is executed after its
	// deadline.
	ErrDeadlineExpired = errors.New("transaction too old")

	// ErrPoolNotFound is returned when no pool exists for the pair and fee
	// tier.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrTooLittleReceived is returned when an exact input trade would
	// yield less than the minimum output.
	ErrTooLittleReceived = errors.New("too little received")

	// ErrTooMuchRequested is returned when an exact output trade would
	// require more than the maximum input.
	ErrTooMuchRequested = errors.New("too much requested")

	// ErrInsufficientLiquidity is returned when the pool cannot provide
	// the requested output.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrInvalidTrade is returned for structurally invalid trade
	// parameters.
	ErrInvalidTrade = errors.New("invalid trade")

	// ErrDeliveryMismatch is returned when the balances moved by a venue
	// do not match the exact output of the trade.
	ErrDeliveryMismatch = errors.New("delivery mismatch")
)

// ExactInputParams are the parameters of a single pool exact input trade.
type ExactInputParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Fee              uint32
	Recipient        common.Address
	Deadline         uint64
	AmountIn         *uint256.Int
	AmountOutMinimum *uint256.Int
}

// ExactOutputParams are the parameters of a single pool exact output trade.
type ExactOutputParams struct {
	TokenIn         common.Address
	TokenOut        common.Address
	Fee             uint32
	Recipient       common.Address
	Deadline        uint64
	AmountOut       *uint256.Int
	AmountInMaximum *uint256.Int
}

// Venue is a liquidity venue with single pool swap entry points. The payer
// authorizes the venue to pull the input from its balance. All balance
// changes are made through the passed transaction.
type Venue interface {
	// ExactInputSingle sells params.AmountIn of TokenIn and returns the
	// amount of TokenOut delivered to the recipient.
	ExactInputSingle(ctx context.Context, tx *ledger.Tx,
		payer common.Address,
		params *ExactInputParams) (*uint256.Int, error)

	// ExactOutputSingle buys params.AmountOut of TokenOut and returns the
	// amount of TokenIn used.
	ExactOutputSingle(ctx context.Context, tx *ledger.Tx,
		payer common.Address,
		params *ExactOutputParams) (*uint256.Int, error)

	// RefundNative returns any native balance the venue holds on behalf of
	// the caller to the given address.
	RefundNative(ctx context.Context, tx *ledger.Tx,
		to common.Address) error
}
