package relayer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/transport"
)

// Settler is the inbound side of a settlement agent.
type Settler interface {
	// ChainID returns the chain the agent lives on.
	ChainID() transport.ChainID

	// Address returns the address of the agent.
	Address() common.Address

	// Codec returns the payload codec of the agent.
	Codec() *payload.Codec

	RecvAndSwapExactIn(ctx context.Context, caller common.Address,
		msg *transport.AttestedMessage) (*settlement.Result, error)

	RecvAndSwapExactNativeIn(ctx context.Context, caller common.Address,
		msg *transport.AttestedMessage) (*settlement.Result, error)

	RecvAndSwapExactOut(ctx context.Context, caller common.Address,
		msg *transport.AttestedMessage) (*settlement.Result, error)

	RecvAndSwapExactNativeOut(ctx context.Context, caller common.Address,
		msg *transport.AttestedMessage) (*settlement.Result, error)

	RecvAndDeliver(ctx context.Context, caller common.Address,
		msg *transport.AttestedMessage) (*settlement.Result, error)
}

// A compile time assertion to ensure the agent satisfies Settler.
var _ Settler = (*settlement.Agent)(nil)

// EntryPoint is one of the inbound calls of an agent.
type EntryPoint uint8

const (
	// EntryExactIn sells the bridged asset for a token on the
	// destination chain.
	EntryExactIn EntryPoint = iota

	// EntryExactNativeIn sells the bridged asset for the native asset
	// of the destination chain.
	EntryExactNativeIn

	// EntryExactOut buys an exact amount of a token with the bridged
	// asset.
	EntryExactOut

	// EntryExactNativeOut buys an exact amount of the native asset with
	// the bridged asset.
	EntryExactNativeOut

	// EntryDeliver hands the bridged asset to the recipient without a
	// trade. It settles recipient-only payloads.
	EntryDeliver
)

// String returns the name of the call.
func (e EntryPoint) String() string {
	switch e {
	case EntryExactIn:
		return "RecvAndSwapExactIn"

	case EntryExactNativeIn:
		return "RecvAndSwapExactNativeIn"

	case EntryExactOut:
		return "RecvAndSwapExactOut"

	case EntryExactNativeOut:
		return "RecvAndSwapExactNativeOut"

	case EntryDeliver:
		return "RecvAndDeliver"

	default:
		return fmt.Sprintf("EntryPoint(%d)", uint8(e))
	}
}

// SelectEntryPoint picks the call that settles a message carrying raw. V3
// payloads name their leg kind. V2 payloads do not, so a V2 swap buying
// wrappedNative is delivered as the native asset and any other as a token.
func SelectEntryPoint(codec *payload.Codec, wrappedNative common.Address,
	raw []byte) (EntryPoint, error) {

	p, err := codec.Decode(raw)
	if err != nil {
		return 0, err
	}

	if p.RecipientOnly() {
		return EntryDeliver, nil
	}

	kind := p.Swap.LegKind
	if codec.Version() == payload.V2 {
		kind = payload.LegKindToken
		if wrappedNative != (common.Address{}) &&
			p.Swap.AssetOut == wrappedNative {

			kind = payload.LegKindNative
		}
	}

	switch {
	case p.Swap.TradeMode == payload.ExactIn &&
		kind == payload.LegKindToken:

		return EntryExactIn, nil

	case p.Swap.TradeMode == payload.ExactIn &&
		kind == payload.LegKindNative:

		return EntryExactNativeIn, nil

	case p.Swap.TradeMode == payload.ExactOut &&
		kind == payload.LegKindToken:

		return EntryExactOut, nil

	case p.Swap.TradeMode == payload.ExactOut &&
		kind == payload.LegKindNative:

		return EntryExactNativeOut, nil
	}

	return 0, fmt.Errorf("%w: mode %v, kind %v",
		settlement.ErrPayloadMismatch, p.Swap.TradeMode, kind)
}

// submit makes the call e on s.
func (e EntryPoint) submit(ctx context.Context, s Settler,
	caller common.Address,
	msg *transport.AttestedMessage) (*settlement.Result, error) {

	switch e {
	case EntryExactIn:
		return s.RecvAndSwapExactIn(ctx, caller, msg)

	case EntryExactNativeIn:
		return s.RecvAndSwapExactNativeIn(ctx, caller, msg)

	case EntryExactOut:
		return s.RecvAndSwapExactOut(ctx, caller, msg)

	case EntryExactNativeOut:
		return s.RecvAndSwapExactNativeOut(ctx, caller, msg)

	case EntryDeliver:
		return s.RecvAndDeliver(ctx, caller, msg)

	default:
		return nil, fmt.Errorf("unknown entry point %v", e)
	}
}
