package transport

import (
	"bytes"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/ledger"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

const (
	chainA ChainID = 2
	chainB ChainID = 5
)

var (
	testKey = bytes.Repeat([]byte{0x42}, 32)

	endpointA = common.HexToAddress("0xe0a")
	endpointB = common.HexToAddress("0xe0b")
	usdcA     = common.HexToAddress("0xc0a")
	usdcB     = common.HexToAddress("0xc0b")
	sender    = common.HexToAddress("0x5e")
	agentB    = common.HexToAddress("0xa6b")
	relayer   = common.HexToAddress("0x7e1")
)

func amt(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

type testNet struct {
	hub     *Hub
	ledgerA *ledger.Ledger
	ledgerB *ledger.Ledger
	a       *Endpoint
	b       *Endpoint
}

func newTestNet(t *testing.T, modeB FeeMode) *testNet {
	t.Helper()

	hub, err := NewHub(testKey)
	require.NoError(t, err)

	a, err := hub.NewEndpoint(chainA, endpointA, FeeModeDeduct)
	require.NoError(t, err)

	b, err := hub.NewEndpoint(chainB, endpointB, modeB)
	require.NoError(t, err)

	err = hub.RegisterAsset(chainA, usdcA, map[ChainID]common.Address{
		chainB: usdcB,
	})
	require.NoError(t, err)

	return &testNet{
		hub:     hub,
		ledgerA: ledger.New("a", common.Address{}),
		ledgerB: ledger.New("b", common.Address{}),
		a:       a,
		b:       b,
	}
}

func (n *testNet) send(t *testing.T, amount, fee uint64,
	payload []byte) *TransferReceipt {

	t.Helper()

	var receipt *TransferReceipt
	err := n.ledgerA.Atomic(func(tx *ledger.Tx) error {
		var err error
		receipt, err = n.a.TransferWithPayload(
			context.Background(), tx, sender, &TransferRequest{
				Asset:           usdcA,
				Amount:          amt(amount),
				TargetChain:     chainB,
				TargetRecipient: AddressToBytes32(agentB),
				RelayerFee:      amt(fee),
				Nonce:           7,
				Payload:         payload,
			},
		)
		return err
	})
	require.NoError(t, err)

	return receipt
}

// TestEnvelopeLayout checks the message lengths of both payload layouts and
// the round trip.
func TestEnvelopeLayout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		payloadLen int
		messageLen int
	}{
		{
			name:       "v2 payload",
			payloadLen: 140,
			messageLen: 273,
		},
		{
			name:       "v3 payload",
			payloadLen: 141,
			messageLen: 274,
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			env := &Envelope{
				Token:      AddressToBytes32(usdcA),
				TokenChain: chainA,
				To:         AddressToBytes32(agentB),
				ToChain:    chainB,
				Payload: bytes.Repeat(
					[]byte{1}, test.payloadLen,
				),
			}
			env.Amount.SetUint64(1_000_000)
			env.RelayerFee.SetUint64(10_000)

			raw := env.Encode()
			require.Len(t, raw, test.messageLen)
			require.Equal(t, byte(PayloadIDTransferWithPayload),
				raw[0])

			decoded, err := DecodeEnvelope(raw)
			require.NoError(t, err)
			require.Equal(t, env, decoded)

			_, err = DecodeEnvelope(raw[:EnvelopeLength-1])
			require.ErrorIs(t, err, ErrMalformedMessage)

			raw[0] = 1
			_, err = DecodeEnvelope(raw)
			require.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

// TestTransferAndRedeem runs a transfer from its home chain to a wrapped
// representation, in both fee modes.
func TestTransferAndRedeem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		mode         FeeMode
		wantAgent    uint64
		wantRelayer  uint64
		wantFeePaid  uint64
		feeRecipient common.Address
	}{
		{
			name:         "deduct",
			mode:         FeeModeDeduct,
			wantAgent:    990,
			wantRelayer:  10,
			wantFeePaid:  10,
			feeRecipient: relayer,
		},
		{
			name:         "release",
			mode:         FeeModeRelease,
			wantAgent:    1000,
			feeRecipient: relayer,
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			n := newTestNet(t, test.mode)
			err := n.ledgerA.Mint(usdcA, sender, amt(1000))
			require.NoError(t, err)

			receipt := n.send(t, 1000, 10, []byte("payload"))
			require.Equal(t, uint64(0), receipt.Sequence)

			// The home asset is locked in the endpoint.
			require.Equal(t, amt(1000),
				n.ledgerA.BalanceOf(usdcA, endpointA))

			pending := n.hub.Pending(chainB)
			require.Len(t, pending, 1)
			require.Equal(t, receipt.ID, pending[0].ID())

			// The message survives a serialization round trip.
			msg, err := DecodeAttestedMessage(pending[0].Encode())
			require.NoError(t, err)
			require.Equal(t, pending[0], msg)

			var redemption *Redemption
			err = n.ledgerB.Atomic(func(tx *ledger.Tx) error {
				var err error
				redemption, err = n.b.RedeemWithPayload(
					context.Background(), tx, agentB, msg,
					test.feeRecipient,
				)
				return err
			})
			require.NoError(t, err)

			require.Equal(t, []byte("payload"), redemption.Payload)
			require.Equal(t, usdcB, redemption.Asset)
			require.Equal(t, chainA, redemption.FromChain)
			require.Equal(t, amt(1000), redemption.Amount)
			require.Equal(t, amt(test.wantFeePaid),
				redemption.FeePaid)
			require.Equal(t, amt(test.wantAgent),
				n.ledgerB.BalanceOf(usdcB, agentB))
			require.Equal(t, amt(test.wantRelayer),
				n.ledgerB.BalanceOf(usdcB, relayer))

			require.True(t, n.hub.Redeemed(receipt.ID))
			require.Empty(t, n.hub.Pending(chainB))

			// Redemption is single use.
			err = n.ledgerB.Atomic(func(tx *ledger.Tx) error {
				_, err := n.b.RedeemWithPayload(
					context.Background(), tx, agentB, msg,
					relayer,
				)
				return err
			})
			require.ErrorIs(t, err, ErrAlreadyRedeemed)
		})
	}
}

// TestRedeemRevert asserts that a redemption undone by its transaction can
// be redeemed again.
func TestRedeemRevert(t *testing.T) {
	t.Parallel()

	n := newTestNet(t, FeeModeDeduct)
	require.NoError(t, n.ledgerA.Mint(usdcA, sender, amt(100)))

	receipt := n.send(t, 100, 0, nil)
	msg := n.hub.Pending(chainB)[0]

	err := n.ledgerB.Atomic(func(tx *ledger.Tx) error {
		_, err := n.b.RedeemWithPayload(
			context.Background(), tx, agentB, msg, relayer,
		)
		require.NoError(t, err)

		return ErrWrongChain
	})
	require.ErrorIs(t, err, ErrWrongChain)
	require.False(t, n.hub.Redeemed(receipt.ID))
	require.True(t, n.ledgerB.BalanceOf(usdcB, agentB).IsZero())

	err = n.ledgerB.Atomic(func(tx *ledger.Tx) error {
		_, err := n.b.RedeemWithPayload(
			context.Background(), tx, agentB, msg, relayer,
		)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, amt(100), n.ledgerB.BalanceOf(usdcB, agentB))
}

// TestTransferRevert asserts that a reverted transfer publishes nothing and
// releases its sequence.
func TestTransferRevert(t *testing.T) {
	t.Parallel()

	n := newTestNet(t, FeeModeDeduct)
	require.NoError(t, n.ledgerA.Mint(usdcA, sender, amt(100)))

	err := n.ledgerA.Atomic(func(tx *ledger.Tx) error {
		_, err := n.a.TransferWithPayload(
			context.Background(), tx, sender, &TransferRequest{
				Asset:           usdcA,
				Amount:          amt(100),
				TargetChain:     chainB,
				TargetRecipient: AddressToBytes32(agentB),
			},
		)
		require.NoError(t, err)

		return ErrUnknownAsset
	})
	require.ErrorIs(t, err, ErrUnknownAsset)

	msgs, cursor := n.hub.Messages(0)
	require.Empty(t, msgs)
	require.Zero(t, cursor)
	require.Equal(t, amt(100), n.ledgerA.BalanceOf(usdcA, sender))

	receipt := n.send(t, 100, 0, nil)
	require.Equal(t, uint64(0), receipt.Sequence)
}

// TestRedeemRejections covers the checks made before any funds move.
func TestRedeemRejections(t *testing.T) {
	t.Parallel()

	n := newTestNet(t, FeeModeDeduct)
	require.NoError(t, n.ledgerA.Mint(usdcA, sender, amt(100)))
	n.send(t, 100, 0, nil)

	redeem := func(caller common.Address, msg *AttestedMessage,
		e *Endpoint, l *ledger.Ledger) error {

		return l.Atomic(func(tx *ledger.Tx) error {
			_, err := e.RedeemWithPayload(
				context.Background(), tx, caller, msg, relayer,
			)
			return err
		})
	}

	msg := n.hub.Pending(chainB)[0]

	err := redeem(relayer, msg, n.b, n.ledgerB)
	require.ErrorIs(t, err, ErrNotRecipient)

	err = redeem(agentB, msg, n.a, n.ledgerA)
	require.ErrorIs(t, err, ErrWrongChain)

	forged := *msg
	forged.Body = append([]byte(nil), msg.Body...)
	forged.Body[32] ^= 0xff
	err = redeem(agentB, &forged, n.b, n.ledgerB)
	require.ErrorIs(t, err, ErrBadAttestation)

	require.True(t, n.ledgerB.BalanceOf(usdcB, agentB).IsZero())
}

// TestTransferRejections covers invalid transfer requests.
func TestTransferRejections(t *testing.T) {
	t.Parallel()

	n := newTestNet(t, FeeModeDeduct)
	require.NoError(t, n.ledgerA.Mint(usdcA, sender, amt(100)))

	transfer := func(req *TransferRequest) error {
		return n.ledgerA.Atomic(func(tx *ledger.Tx) error {
			_, err := n.a.TransferWithPayload(
				context.Background(), tx, sender, req,
			)
			return err
		})
	}

	err := transfer(&TransferRequest{
		Asset:       usdcA,
		Amount:      amt(10),
		RelayerFee:  amt(11),
		TargetChain: chainB,
	})
	require.ErrorIs(t, err, ErrFeeExceedsAmount)

	err = transfer(&TransferRequest{
		Asset:       usdcA,
		Amount:      amt(10),
		TargetChain: 99,
	})
	require.ErrorIs(t, err, ErrUnknownChain)

	err = transfer(&TransferRequest{
		Asset:       usdcB,
		Amount:      amt(10),
		TargetChain: chainB,
	})
	require.ErrorIs(t, err, ErrUnknownAsset)

	err = transfer(&TransferRequest{
		Asset:       usdcA,
		Amount:      amt(101),
		TargetChain: chainB,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

// TestWrappedRoundTrip sends the wrapped representation back to its home
// chain, which burns it and unlocks the home asset.
func TestWrappedRoundTrip(t *testing.T) {
	t.Parallel()

	n := newTestNet(t, FeeModeDeduct)
	require.NoError(t, n.ledgerA.Mint(usdcA, sender, amt(100)))
	n.send(t, 100, 0, nil)

	msg := n.hub.Pending(chainB)[0]
	err := n.ledgerB.Atomic(func(tx *ledger.Tx) error {
		_, err := n.b.RedeemWithPayload(
			context.Background(), tx, agentB, msg, relayer,
		)
		return err
	})
	require.NoError(t, err)

	err = n.ledgerB.Atomic(func(tx *ledger.Tx) error {
		_, err := n.b.TransferWithPayload(
			context.Background(), tx, agentB, &TransferRequest{
				Asset:           usdcB,
				Amount:          amt(100),
				TargetChain:     chainA,
				TargetRecipient: AddressToBytes32(sender),
			},
		)
		return err
	})
	require.NoError(t, err)
	require.True(t, n.ledgerB.BalanceOf(usdcB, agentB).IsZero())

	back := n.hub.Pending(chainA)
	require.Len(t, back, 1)

	err = n.ledgerA.Atomic(func(tx *ledger.Tx) error {
		_, err := n.a.RedeemWithPayload(
			context.Background(), tx, sender, back[0], relayer,
		)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, amt(100), n.ledgerA.BalanceOf(usdcA, sender))
	require.True(t, n.ledgerA.BalanceOf(usdcA, endpointA).IsZero())
}

func TestParseMessageID(t *testing.T) {
	var id MessageID
	for i := range id {
		id[i] = byte(i)
	}

	parsed, err := ParseMessageID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = ParseMessageID("zz")
	require.Error(t, err)

	_, err = ParseMessageID(id.String()[:62])
	require.ErrorContains(t, err, "length 31")
}
