package highway

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/transport"
	"github.com/holiman/uint256"
)

// SwapRequest contains the parameters of a native to native swap.
type SwapRequest struct {
	// From is the chain the swap starts on. The swap settles on the
	// other chain of the network.
	From transport.ChainID

	// Sender pays the native input on the origin chain.
	Sender common.Address

	// Recipient receives the native output on the target chain.
	Recipient common.Address

	// Mode selects whether Amount is the input or the output.
	Mode payload.TradeMode

	// Amount is the native input for ExactIn swaps and the native output
	// for ExactOut swaps.
	Amount *uint256.Int

	// RelayerFee is the bridge asset amount paid to the relayer.
	RelayerFee *uint256.Int

	// SlippageBps is the tolerated price movement between quoting and
	// settlement, in basis points.
	SlippageBps uint32

	// Expiry is how long both legs may take. DefaultExpiry is used if it
	// is zero.
	Expiry time.Duration
}

// QuoteRequest asks for the expected amounts of a swap.
type QuoteRequest struct {
	// From is the chain the swap starts on.
	From transport.ChainID

	// Mode selects whether Amount is the input or the output.
	Mode payload.TradeMode

	// Amount is the native input for ExactIn and the native output for
	// ExactOut.
	Amount *uint256.Int

	// RelayerFee is the bridge asset amount paid to the relayer.
	RelayerFee *uint256.Int
}

// Quote holds the amounts a swap is expected to move at current reserves.
type Quote struct {
	// AmountIn is the native input on the origin chain.
	AmountIn *uint256.Int

	// BridgeAmount is the bridge asset amount sent, relayer fee included.
	BridgeAmount *uint256.Int

	// Released is the bridge asset amount traded on the target chain.
	Released *uint256.Int

	// AmountOut is the native output on the target chain.
	AmountOut *uint256.Int
}

// SwapState is the state of a swap as seen by the client.
type SwapState uint8

const (
	// StateInFlight is a swap whose transfer was sent but not settled.
	StateInFlight SwapState = iota

	// StateDelivered is a swap that settled with the requested asset.
	StateDelivered

	// StateRefunded is a swap that settled with the bridge asset because
	// the destination trade failed.
	StateRefunded

	// StateFailed is a swap whose origin call failed. Nothing moved.
	StateFailed
)

// String returns a human readable form of the state.
func (s SwapState) String() string {
	switch s {
	case StateInFlight:
		return "InFlight"

	case StateDelivered:
		return "Delivered"

	case StateRefunded:
		return "Refunded"

	case StateFailed:
		return "Failed"

	default:
		return fmt.Sprintf("SwapState(%d)", uint8(s))
	}
}

// SwapInfo is the state of a swap.
type SwapInfo struct {
	// ID is the id of the transport message carrying the swap. It is
	// zero for failed swaps.
	ID transport.MessageID

	// State is the state of the swap.
	State SwapState

	// Transfer is the committed origin side, nil for failed swaps.
	Transfer *settlement.Transfer

	// Result is the settlement, nil while in flight.
	Result *settlement.Result

	// Err is the reason a failed swap failed.
	Err error
}

// stateFromResult maps a settlement to the state of its swap.
func stateFromResult(result *settlement.Result) SwapState {
	if result == nil {
		return StateInFlight
	}
	if result.Outcome == settlement.OutcomeRefunded {
		return StateRefunded
	}

	return StateDelivered
}
