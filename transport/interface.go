package transport

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/ledger"
	"github.com/holiman/uint256"
)

var (
	// ErrBadAttestation is returned when a message's attestation does not
	// verify.
	ErrBadAttestation = errors.New("bad attestation")

	// ErrAlreadyRedeemed is returned when a message is redeemed a second
	// time.
	ErrAlreadyRedeemed = errors.New("message already redeemed")

	// ErrWrongChain is returned when a message is redeemed on a chain
	// other than its target chain.
	ErrWrongChain = errors.New("message targets another chain")

	// ErrNotRecipient is returned when a caller other than the addressed
	// contract tries to redeem a message.
	ErrNotRecipient = errors.New("caller is not the message recipient")

	// ErrUnknownAsset is returned for assets not registered with the
	// hub.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrFeeExceedsAmount is returned when the relayer fee is larger than
	// the transferred amount.
	ErrFeeExceedsAmount = errors.New("relayer fee exceeds amount")

	// ErrUnknownChain is returned for transfers to chains without an
	// endpoint.
	ErrUnknownChain = errors.New("unknown chain")
)

// FeeMode selects who pays the relayer fee on redemption.
type FeeMode uint8

const (
	// FeeModeDeduct makes the transport pay the relayer fee to the fee
	// recipient named at redemption and release the rest.
	FeeModeDeduct FeeMode = iota

	// FeeModeRelease releases the full amount to the redeemer, which then
	// owes the relayer fee itself.
	FeeModeRelease
)

// String returns the name of the fee mode.
func (m FeeMode) String() string {
	switch m {
	case FeeModeDeduct:
		return "deduct"

	case FeeModeRelease:
		return "release"

	default:
		return "unknown"
	}
}

// TransferRequest asks the transport to move an asset to another chain along
// with a payload.
type TransferRequest struct {
	// Asset is the local address of the asset to transfer.
	Asset common.Address

	// Amount is the amount to transfer, relayer fee included.
	Amount *uint256.Int

	// TargetChain is the chain to transfer to.
	TargetChain ChainID

	// TargetRecipient is the contract on the target chain that may redeem
	// the transfer.
	TargetRecipient [32]byte

	// RelayerFee is the part of the amount owed to the relayer.
	RelayerFee *uint256.Int

	// Nonce is an arbitrary value chosen by the sender.
	Nonce uint32

	// Payload is the application payload.
	Payload []byte
}

// TransferReceipt identifies an accepted transfer.
type TransferReceipt struct {
	// Sequence is the emitter sequence of the message.
	Sequence uint64

	// ID is the message id.
	ID MessageID
}

// Redemption describes a redeemed transfer.
type Redemption struct {
	// ID is the message id.
	ID MessageID

	// FromChain is the chain that emitted the message.
	FromChain ChainID

	// Asset is the local address of the released asset.
	Asset common.Address

	// Amount is the transferred amount as declared by the envelope.
	Amount *uint256.Int

	// RelayerFee is the relayer fee declared by the envelope.
	RelayerFee *uint256.Int

	// FeePaid is the part of the relayer fee the transport paid out.
	FeePaid *uint256.Int

	// Payload is the raw application payload.
	Payload []byte
}

// Transport moves assets between chains. Both operations run in the caller's
// ledger transaction and are undone with it.
type Transport interface {
	// ChainID returns the chain the transport is attached to.
	ChainID() ChainID

	// FeeMode returns the relayer fee contract of the transport.
	FeeMode() FeeMode

	// TransferWithPayload takes the amount from sender and emits a
	// message once the transaction commits.
	TransferWithPayload(ctx context.Context, tx *ledger.Tx,
		sender common.Address,
		req *TransferRequest) (*TransferReceipt, error)

	// RedeemWithPayload verifies and redeems a message addressed to the
	// caller, crediting the released asset to the caller.
	RedeemWithPayload(ctx context.Context, tx *ledger.Tx,
		caller common.Address, msg *AttestedMessage,
		feeRecipient common.Address) (*Redemption, error)
}
