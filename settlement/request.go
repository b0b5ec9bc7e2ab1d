package settlement

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/transport"
	"github.com/holiman/uint256"
)

// Path indexes.
const (
	// PathSource is the input of the origin leg.
	PathSource = iota

	// PathBridge is the output of the origin leg, the local bridge asset.
	PathBridge

	// PathRemoteBridge is the input of the destination leg, the bridge
	// asset on the target chain.
	PathRemoteBridge

	// PathTarget is the output of the destination leg.
	PathTarget
)

// SwapRequest is a swap submitted on the origin chain.
type SwapRequest struct {
	// Sender pays the input and receives unused input back.
	Sender common.Address

	// TradeMode selects exact input or exact output for both legs.
	TradeMode payload.TradeMode

	// LegKind is Native for a swap from the native asset of the origin
	// chain to the native asset of the target chain, and Token for token
	// to token swaps.
	LegKind payload.LegKind

	// AmountIn is the exact input for exact input swaps and the maximum
	// input for exact output swaps.
	AmountIn *uint256.Int

	// TargetAmount is the minimum bridge asset output of the origin leg
	// for exact input swaps and its exact output for exact output swaps.
	// It must exceed the relayer fee.
	TargetAmount *uint256.Int

	// DestinationAmount is the minimum or exact output of the destination
	// leg. It is unused for recipient-only routes.
	DestinationAmount *uint256.Int

	// Path is source, bridge, remote bridge and target asset. Native legs
	// name the wrapped native asset of their chain.
	Path [4]common.Address

	// PoolFee is the fee tier of the origin leg.
	PoolFee uint32

	// DestinationPoolFee is the fee tier of the destination leg.
	DestinationPoolFee uint32

	// Deadline is the unix timestamp after which both legs fail.
	Deadline uint64

	// RelayerFee is the bridge asset amount paid to the relayer.
	RelayerFee *uint256.Int

	// TargetChain is the chain to swap to.
	TargetChain transport.ChainID

	// TargetRecipient receives the output on the target chain.
	TargetRecipient payload.Recipient

	// Nonce is passed on to the transport.
	Nonce uint32
}

// invalid returns an ErrInvalidRequest with the given detail.
func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest,
		fmt.Sprintf(format, args...))
}

// validateRequest checks every precondition of an outbound swap. It returns
// the route to the target chain.
func (a *Agent) validateRequest(req *SwapRequest) (Route, error) {
	switch {
	case req.Sender == (common.Address{}):
		return Route{}, invalid("missing sender")

	case !req.TradeMode.Valid():
		return Route{}, invalid("unknown trade mode %v", req.TradeMode)

	case req.LegKind != payload.LegKindNative &&
		req.LegKind != payload.LegKindToken:

		return Route{}, invalid("unknown leg kind %v", req.LegKind)

	case req.AmountIn == nil || req.AmountIn.IsZero():
		return Route{}, invalid("zero input amount")

	case req.TargetAmount == nil || req.RelayerFee == nil:
		return Route{}, invalid("missing target amount or relayer fee")

	// The relayer is paid out of the bridged amount, so the amount has
	// to be able to cover it.
	case !req.RelayerFee.Lt(req.TargetAmount):
		return Route{}, invalid("target amount %v does not exceed "+
			"relayer fee %v", req.TargetAmount, req.RelayerFee)

	case req.Path[PathBridge] != a.cfg.BridgeAsset:
		return Route{}, invalid("origin leg must output the bridge "+
			"asset %v, got %v", a.cfg.BridgeAsset,
			req.Path[PathBridge])

	case req.Path[PathSource] == req.Path[PathBridge]:
		return Route{}, invalid("origin leg trades the bridge asset " +
			"against itself")
	}

	if req.LegKind == payload.LegKindNative {
		if a.cfg.WrappedNative == (common.Address{}) {
			return Route{}, invalid("no wrapped native asset " +
				"configured")
		}
		if req.Path[PathSource] != a.cfg.WrappedNative {
			return Route{}, invalid("native swaps must trade the "+
				"wrapped native asset %v, got %v",
				a.cfg.WrappedNative, req.Path[PathSource])
		}
	}

	route, ok := a.cfg.Routes[req.TargetChain]
	if !ok {
		return Route{}, invalid("no route to %v", req.TargetChain)
	}

	if req.Path[PathRemoteBridge] != route.BridgeAsset {
		return Route{}, invalid("destination leg must trade the "+
			"bridge asset %v, got %v", route.BridgeAsset,
			req.Path[PathRemoteBridge])
	}

	if !a.allowedFee(req.PoolFee, nil) {
		return Route{}, invalid("pool fee %d not allowed", req.PoolFee)
	}

	if now := a.cfg.Clock.Now().Unix(); now < 0 ||
		uint64(now) > req.Deadline {

		return Route{}, invalid("deadline %d has passed", req.Deadline)
	}

	if _, ok := req.TargetRecipient.Address(); !ok ||
		req.TargetRecipient == (payload.Recipient{}) {

		return Route{}, invalid("recipient %v is not an address",
			req.TargetRecipient)
	}

	if route.RecipientOnly {
		return route, nil
	}

	target := req.Path[PathTarget]
	switch {
	case req.DestinationAmount == nil || req.DestinationAmount.IsZero():
		return Route{}, invalid("zero destination amount")

	case req.DestinationPoolFee > payload.MaxPoolFee ||
		!a.allowedFee(req.DestinationPoolFee, route.PoolFees):

		return Route{}, invalid("destination pool fee %d not allowed",
			req.DestinationPoolFee)

	case target == (common.Address{}) || target == route.BridgeAsset:
		return Route{}, invalid("invalid destination asset %v", target)

	case req.LegKind == payload.LegKindNative &&
		route.WrappedNative != (common.Address{}) &&
		target != route.WrappedNative:

		return Route{}, invalid("native swaps must buy the wrapped "+
			"native asset %v, got %v", route.WrappedNative, target)
	}

	return route, nil
}

// Transfer describes a committed outbound swap.
type Transfer struct {
	// ID is the id of the transport message.
	ID transport.MessageID

	// Sequence is the emitter sequence of the message.
	Sequence uint64

	// SourceChain is the chain the swap started on.
	SourceChain transport.ChainID

	// TargetChain is the chain the swap is settled on.
	TargetChain transport.ChainID

	// Sender paid the input.
	Sender common.Address

	// SourceAsset is the input asset, the zero address for native input.
	SourceAsset common.Address

	// AmountIn is the input consumed by the origin leg.
	AmountIn *uint256.Int

	// Refunded is the unused input returned to the sender.
	Refunded *uint256.Int

	// BridgeAmount is the bridge asset amount sent, relayer fee included.
	BridgeAmount *uint256.Int

	// RelayerFee is the relayer fee of the transfer.
	RelayerFee *uint256.Int

	// Recipient receives the output on the target chain.
	Recipient payload.Recipient

	// Payload is the encoded payload carried by the transfer.
	Payload []byte

	// Nonce is the nonce of the request.
	Nonce uint32
}
