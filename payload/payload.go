package payload

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// RecipientOnlyLength is the length of the recipient-only payload.
	RecipientOnlyLength = 32

	// FullLengthV2 is the length of a full-instruction payload in the V2
	// layout which has no leg-kind discriminator. Behind the transfer
	// envelope a V2 message is 273 bytes and a V3 message 274.
	FullLengthV2 = 32 + 32 + 20 + 20 + 32 + 3 + 1

	// FullLengthV3 is the length of a full-instruction payload in the V3
	// layout.
	FullLengthV3 = FullLengthV2 + 1

	// MaxPoolFee is the largest pool fee representable in the uint24 pool
	// fee field.
	MaxPoolFee = 1<<24 - 1
)

var (
	// ErrMalformedPayload is returned when a payload does not have one of
	// the recognized total lengths.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnrepresentable is returned when a payload holds a value that
	// does not fit the wire layout.
	ErrUnrepresentable = errors.New("value not representable in payload")
)

// TradeMode is the trade mode tag of the destination leg.
type TradeMode uint8

const (
	// ExactIn sells an exact amount of the bridge asset for at least a
	// minimum amount of the target asset.
	ExactIn TradeMode = 1

	// ExactOut buys an exact amount of the target asset for at most a
	// maximum amount of the bridge asset.
	ExactOut TradeMode = 2
)

// String returns a human readable representation of the trade mode.
func (m TradeMode) String() string {
	switch m {
	case ExactIn:
		return "ExactIn"

	case ExactOut:
		return "ExactOut"

	default:
		return fmt.Sprintf("TradeMode(%d)", uint8(m))
	}
}

// Valid returns true if the tag is a known trade mode.
func (m TradeMode) Valid() bool {
	return m == ExactIn || m == ExactOut
}

// LegKind tells whether the destination leg settles in the chain's native
// asset or in a token.
type LegKind uint8

const (
	// LegKindUnspecified is only carried by the V2 layout. The receiving
	// entry point determines the kind in that case.
	LegKindUnspecified LegKind = 0

	// LegKindNative settles in the native asset of the destination chain.
	LegKindNative LegKind = 1

	// LegKindToken settles in a token of the destination chain.
	LegKindToken LegKind = 2
)

// String returns a human readable representation of the leg kind.
func (k LegKind) String() string {
	switch k {
	case LegKindUnspecified:
		return "Unspecified"

	case LegKindNative:
		return "Native"

	case LegKindToken:
		return "Token"

	default:
		return fmt.Sprintf("LegKind(%d)", uint8(k))
	}
}

// Version selects one of the two historical payload layouts.
type Version uint8

const (
	// V2 is the layout without a leg-kind discriminator.
	V2 Version = 2

	// V3 is the layout carrying the leg-kind discriminator.
	V3 Version = 3
)

// String returns the version as a string.
func (v Version) String() string {
	return fmt.Sprintf("v%d", uint8(v))
}

// FullLength returns the length of the full-instruction payload for the
// version.
func (v Version) FullLength() (int, error) {
	switch v {
	case V2:
		return FullLengthV2, nil

	case V3:
		return FullLengthV3, nil

	default:
		return 0, fmt.Errorf("unknown payload version %d", uint8(v))
	}
}

// Recipient is a chain agnostic 32 byte address.
type Recipient [32]byte

// RecipientFromAddress left pads a 20 byte address to the 32 byte form.
func RecipientFromAddress(addr common.Address) Recipient {
	var r Recipient
	copy(r[12:], addr[:])

	return r
}

// Address returns the 20 byte address embedded in the recipient. The second
// return value is false if the upper 12 bytes are not zero, in which case the
// recipient is not an address of a 20 byte address chain.
func (r Recipient) Address() (common.Address, bool) {
	for _, b := range r[:12] {
		if b != 0 {
			return common.Address{}, false
		}
	}

	return common.BytesToAddress(r[12:]), true
}

// String returns the hex encoding of the recipient.
func (r Recipient) String() string {
	return "0x" + hex.EncodeToString(r[:])
}

// Instructions are the destination leg trade parameters fixed at
// origination.
type Instructions struct {
	// Amount is the minimum output for ExactIn and the exact output for
	// ExactOut.
	Amount uint256.Int

	// AssetOut is the asset the recipient wants to receive.
	AssetOut common.Address

	// PoolAsset is the input asset of the destination leg, which must be
	// the bridge asset of the destination chain.
	PoolAsset common.Address

	// Deadline is the unix timestamp after which the destination trade
	// must fail.
	Deadline uint256.Int

	// PoolFee is the fee tier of the destination pool.
	PoolFee uint32

	// TradeMode is the trade mode of the destination leg.
	TradeMode TradeMode

	// LegKind is the kind of the destination leg.
	LegKind LegKind
}

// Payload is the message carried along with the bridge asset transfer. Swap is
// nil for the recipient-only variant.
type Payload struct {
	// Recipient receives the outcome of the destination leg.
	Recipient Recipient

	// Swap holds the destination leg instructions, if any.
	Swap *Instructions
}

// RecipientOnly returns true if the payload carries no swap instructions.
func (p *Payload) RecipientOnly() bool {
	return p.Swap == nil
}

// Codec encodes and decodes payloads of one layout version.
type Codec struct {
	version Version
}

// NewCodec returns a codec for the given layout version.
func NewCodec(version Version) (*Codec, error) {
	if _, err := version.FullLength(); err != nil {
		return nil, err
	}

	return &Codec{
		version: version,
	}, nil
}

// Version returns the layout version of the codec.
func (c *Codec) Version() Version {
	return c.version
}

// FullLength returns the length of a full-instruction payload.
func (c *Codec) FullLength() int {
	if c.version == V2 {
		return FullLengthV2
	}

	return FullLengthV3
}

// Encode serializes the payload into its fixed width big endian layout.
func (c *Codec) Encode(p *Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrUnrepresentable)
	}

	if p.Swap == nil {
		out := make([]byte, RecipientOnlyLength)
		copy(out, p.Recipient[:])

		return out, nil
	}

	swap := p.Swap
	switch {
	case swap.PoolFee > MaxPoolFee:
		return nil, fmt.Errorf("%w: pool fee %d exceeds 24 bits",
			ErrUnrepresentable, swap.PoolFee)

	case !swap.TradeMode.Valid():
		return nil, fmt.Errorf("%w: trade mode %v",
			ErrUnrepresentable, swap.TradeMode)

	case c.version == V2 && swap.LegKind != LegKindUnspecified:
		return nil, fmt.Errorf("%w: leg kind %v in v2 layout",
			ErrUnrepresentable, swap.LegKind)

	case c.version == V3 && swap.LegKind != LegKindNative &&
		swap.LegKind != LegKindToken:

		return nil, fmt.Errorf("%w: leg kind %v in v3 layout",
			ErrUnrepresentable, swap.LegKind)
	}

	out := make([]byte, c.FullLength())
	w := out

	amount := swap.Amount.Bytes32()
	w = w[copy(w, amount[:]):]
	w = w[copy(w, p.Recipient[:]):]
	w = w[copy(w, swap.AssetOut[:]):]
	w = w[copy(w, swap.PoolAsset[:]):]

	deadline := swap.Deadline.Bytes32()
	w = w[copy(w, deadline[:]):]

	w[0] = byte(swap.PoolFee >> 16)
	w[1] = byte(swap.PoolFee >> 8)
	w[2] = byte(swap.PoolFee)
	w[3] = byte(swap.TradeMode)

	if c.version == V3 {
		w[4] = byte(swap.LegKind)
	}

	return out, nil
}

// Decode parses a payload. Only the total length is checked, the decoded
// values are returned as found on the wire.
func (c *Codec) Decode(raw []byte) (*Payload, error) {
	switch len(raw) {
	case RecipientOnlyLength:
		p := &Payload{}
		copy(p.Recipient[:], raw)

		return p, nil

	case c.FullLength():

	default:
		return nil, fmt.Errorf("%w: length %d, want %d or %d",
			ErrMalformedPayload, len(raw), c.FullLength(),
			RecipientOnlyLength)
	}

	var (
		p    = &Payload{}
		swap = &Instructions{}
		r    = raw
	)

	swap.Amount.SetBytes(r[:32])
	r = r[32:]

	r = r[copy(p.Recipient[:], r):]
	r = r[copy(swap.AssetOut[:], r):]
	r = r[copy(swap.PoolAsset[:], r):]

	swap.Deadline.SetBytes(r[:32])
	r = r[32:]

	swap.PoolFee = uint32(r[0])<<16 | uint32(r[1])<<8 | uint32(r[2])
	swap.TradeMode = TradeMode(r[3])

	if c.version == V3 {
		swap.LegKind = LegKind(r[4])
	}

	p.Swap = swap

	return p, nil
}
