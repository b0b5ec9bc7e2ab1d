package settlement

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/ledger"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/transport"
	"github.com/highwayswap/highway/venue"
	"github.com/lightningnetwork/lnd/clock"
)

var (
	// ErrInvalidRequest is returned when a swap request violates a
	// precondition. Nothing has moved when it is returned.
	ErrInvalidRequest = errors.New("invalid swap request")

	// ErrMalformedPayload is returned when an inbound payload does not
	// have a recognized shape.
	ErrMalformedPayload = payload.ErrMalformedPayload

	// ErrPayloadMismatch is returned when an inbound payload does not
	// match the entry point it was submitted to, or names an asset pair
	// in the wrong direction.
	ErrPayloadMismatch = errors.New("payload does not match entry point")

	// ErrTradeFailed is returned when the origin leg of a swap fails. The
	// whole call is reverted.
	ErrTradeFailed = errors.New("origin trade failed")

	// ErrCustody is returned when a call would leave the agent holding
	// more or less than it held before.
	ErrCustody = errors.New("agent balance changed")
)

// Route describes the agent on another chain that swaps are sent to.
type Route struct {
	// Agent is the address of the settlement agent on the target chain.
	// Transfers are addressed to it.
	Agent common.Address

	// BridgeAsset is the address of the bridge asset on the target chain.
	// It must be the input of the destination leg.
	BridgeAsset common.Address

	// WrappedNative is the wrapped native asset of the target chain. If
	// set, native swaps must name it as the destination output.
	WrappedNative common.Address

	// RecipientOnly is set when the bridge asset is the settlement asset
	// of the target chain. Swaps to it carry no destination trade.
	RecipientOnly bool

	// PoolFees are the fee tiers allowed for the destination leg. If
	// empty, the local fee tiers apply.
	PoolFees []uint32
}

// Notifier receives the outcomes of committed calls.
type Notifier interface {
	// NotifyTransfer is called for every committed outbound swap.
	NotifyTransfer(*Transfer)

	// NotifyResult is called for every committed inbound settlement.
	NotifyResult(*Result)
}

// Config holds everything a settlement agent needs. It is fixed for the
// lifetime of the agent.
type Config struct {
	// ChainID is the transport id of the agent's chain.
	ChainID transport.ChainID

	// Address is the address of the agent. It holds the assets in flight
	// during a call.
	Address common.Address

	// BridgeAsset is the local address of the bridge asset.
	BridgeAsset common.Address

	// WrappedNative is the local wrapped native asset. Native legs trade
	// against it.
	WrappedNative common.Address

	// Version selects the payload layout and the relayer fee contract.
	// V3 expects the transport to deduct the relayer fee, V2 pays the
	// fee from the released amount.
	Version payload.Version

	// PoolFees are the fee tiers allowed for the origin leg.
	PoolFees []uint32

	// Routes are the target chains swaps may be sent to.
	Routes map[transport.ChainID]Route

	// Ledger is the state of the agent's chain.
	Ledger *ledger.Ledger

	// Venue is the venue both legs trade against.
	Venue venue.Venue

	// Transport moves the bridge asset between chains.
	Transport transport.Transport

	// Clock is used to check deadlines.
	Clock clock.Clock

	// Notifier is optional and receives committed outcomes.
	Notifier Notifier
}
