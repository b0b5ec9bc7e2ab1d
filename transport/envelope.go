package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// PayloadIDTransferWithPayload tags a transfer that carries an
	// application payload.
	PayloadIDTransferWithPayload = 3

	// EnvelopeLength is the length of the transfer envelope without the
	// application payload.
	EnvelopeLength = 1 + 32 + 32 + 2 + 32 + 2 + 32
)

var (
	// ErrMalformedMessage is returned when a message or envelope cannot
	// be parsed.
	ErrMalformedMessage = errors.New("malformed message")
)

// ChainID identifies a chain on the transport.
type ChainID uint16

// String returns the chain id as a string.
func (c ChainID) String() string {
	return fmt.Sprintf("chain-%d", uint16(c))
}

// AddressToBytes32 left pads an address to 32 bytes.
func AddressToBytes32(addr common.Address) [32]byte {
	var b [32]byte
	copy(b[12:], addr[:])

	return b
}

// Bytes32ToAddress returns the address in the low 20 bytes.
func Bytes32ToAddress(b [32]byte) common.Address {
	return common.BytesToAddress(b[12:])
}

// Envelope is the transfer record that precedes the application payload in a
// message body.
type Envelope struct {
	// Amount is the amount transferred, relayer fee included.
	Amount uint256.Int

	// Token is the address of the asset on its home chain.
	Token [32]byte

	// TokenChain is the home chain of the asset.
	TokenChain ChainID

	// To is the contract on the target chain that may redeem the
	// transfer.
	To [32]byte

	// ToChain is the target chain.
	ToChain ChainID

	// RelayerFee is the part of the amount owed to whoever relays the
	// message.
	RelayerFee uint256.Int

	// Payload is the opaque application payload.
	Payload []byte
}

// Encode serializes the envelope followed by the payload.
func (e *Envelope) Encode() []byte {
	out := make([]byte, EnvelopeLength+len(e.Payload))
	w := out

	w[0] = PayloadIDTransferWithPayload
	w = w[1:]

	amount := e.Amount.Bytes32()
	w = w[copy(w, amount[:]):]
	w = w[copy(w, e.Token[:]):]

	binary.BigEndian.PutUint16(w, uint16(e.TokenChain))
	w = w[2:]

	w = w[copy(w, e.To[:]):]

	binary.BigEndian.PutUint16(w, uint16(e.ToChain))
	w = w[2:]

	fee := e.RelayerFee.Bytes32()
	w = w[copy(w, fee[:]):]

	copy(w, e.Payload)

	return out
}

// DecodeEnvelope parses a message body.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	if len(body) < EnvelopeLength {
		return nil, fmt.Errorf("%w: body of %d bytes",
			ErrMalformedMessage, len(body))
	}
	if body[0] != PayloadIDTransferWithPayload {
		return nil, fmt.Errorf("%w: payload id %d", ErrMalformedMessage,
			body[0])
	}

	var (
		e = &Envelope{}
		r = body[1:]
	)

	e.Amount.SetBytes(r[:32])
	r = r[32:]

	r = r[copy(e.Token[:], r):]

	e.TokenChain = ChainID(binary.BigEndian.Uint16(r))
	r = r[2:]

	r = r[copy(e.To[:], r):]

	e.ToChain = ChainID(binary.BigEndian.Uint16(r))
	r = r[2:]

	e.RelayerFee.SetBytes(r[:32])
	r = r[32:]

	e.Payload = append([]byte(nil), r...)

	return e, nil
}
