package transport

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

const (
	// MessageVersion is the only supported message version.
	MessageVersion = 1

	// messageHeaderLength is the length of the serialized message without
	// the body.
	messageHeaderLength = 1 + 32 + 2 + 32 + 8 + 4
)

// MessageID is the digest of the attested part of a message.
type MessageID [32]byte

// String returns the hex encoding of the id.
func (id MessageID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseMessageID parses the hex encoding of a message id.
func ParseMessageID(s string) (MessageID, error) {
	var id MessageID

	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid message id: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid message id length %d", len(b))
	}
	copy(id[:], b)

	return id, nil
}

// Short returns a shortened id suitable for logging.
func (id MessageID) Short() string {
	return id.String()[:8]
}

// AttestedMessage is a message emitted by an endpoint and certified by the
// attestation key of the hub.
type AttestedMessage struct {
	Version      uint8
	EmitterChain ChainID
	Emitter      [32]byte
	Sequence     uint64
	Nonce        uint32
	Body         []byte
	Attestation  [32]byte
}

// signingBytes returns the part of the message covered by the attestation.
func (m *AttestedMessage) signingBytes() []byte {
	out := make([]byte, 1+2+32+8+4+len(m.Body))
	w := out

	w[0] = m.Version
	binary.BigEndian.PutUint16(w[1:], uint16(m.EmitterChain))
	w = w[3:]
	w = w[copy(w, m.Emitter[:]):]
	binary.BigEndian.PutUint64(w, m.Sequence)
	binary.BigEndian.PutUint32(w[8:], m.Nonce)
	copy(w[12:], m.Body)

	return out
}

// ID returns the digest identifying the message.
func (m *AttestedMessage) ID() MessageID {
	return blake3.Sum256(m.signingBytes())
}

// Envelope parses the transfer envelope of the body.
func (m *AttestedMessage) Envelope() (*Envelope, error) {
	return DecodeEnvelope(m.Body)
}

// Encode serializes the message for relaying.
func (m *AttestedMessage) Encode() []byte {
	out := make([]byte, messageHeaderLength+len(m.Body))
	w := out

	w[0] = m.Version
	w = w[1:]
	w = w[copy(w, m.Attestation[:]):]

	binary.BigEndian.PutUint16(w, uint16(m.EmitterChain))
	w = w[2:]
	w = w[copy(w, m.Emitter[:]):]

	binary.BigEndian.PutUint64(w, m.Sequence)
	binary.BigEndian.PutUint32(w[8:], m.Nonce)
	copy(w[12:], m.Body)

	return out
}

// DecodeAttestedMessage parses a serialized message. The attestation is not
// verified.
func DecodeAttestedMessage(raw []byte) (*AttestedMessage, error) {
	if len(raw) < messageHeaderLength {
		return nil, fmt.Errorf("%w: message of %d bytes",
			ErrMalformedMessage, len(raw))
	}

	m := &AttestedMessage{
		Version: raw[0],
	}
	if m.Version != MessageVersion {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedMessage,
			m.Version)
	}

	r := raw[1:]
	r = r[copy(m.Attestation[:], r):]

	m.EmitterChain = ChainID(binary.BigEndian.Uint16(r))
	r = r[2:]
	r = r[copy(m.Emitter[:], r):]

	m.Sequence = binary.BigEndian.Uint64(r)
	m.Nonce = binary.BigEndian.Uint32(r[8:])
	m.Body = append([]byte(nil), r[12:]...)

	return m, nil
}

// attestor computes and checks attestations with a keyed hash.
type attestor struct {
	key []byte
}

// newAttestor returns an attestor for a 32 byte key.
func newAttestor(key []byte) (*attestor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("attestation key must be 32 bytes, "+
			"got %d", len(key))
	}

	return &attestor{
		key: append([]byte(nil), key...),
	}, nil
}

// mac returns the attestation of the message.
func (a *attestor) mac(m *AttestedMessage) ([32]byte, error) {
	var sum [32]byte

	h, err := blake3.NewKeyed(a.key)
	if err != nil {
		return sum, err
	}

	if _, err := h.Write(m.signingBytes()); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))

	return sum, nil
}

// attest fills in the attestation of the message.
func (a *attestor) attest(m *AttestedMessage) error {
	sum, err := a.mac(m)
	if err != nil {
		return err
	}

	m.Attestation = sum

	return nil
}

// verify checks the attestation of the message.
func (a *attestor) verify(m *AttestedMessage) error {
	sum, err := a.mac(m)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare(sum[:], m.Attestation[:]) != 1 {
		return ErrBadAttestation
	}

	return nil
}
