package settledb

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/highwayswap/highway/fsm"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/settledb/sqlc"
	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/transport"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

var testTime = time.Unix(1_700_000_000, 0)

// stores returns every store implementation under test.
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"sqlite": NewTestSqliteDB(t, clock.NewTestClock(testTime)),
		"mock":   NewStoreMock(t),
	}
}

func testTransfer(nr byte) *settlement.Transfer {
	return &settlement.Transfer{
		ID:           transport.MessageID{nr},
		Sequence:     uint64(nr),
		SourceChain:  2,
		TargetChain:  6,
		Sender:       common.HexToAddress("0xa11ce"),
		AmountIn:     uint256.NewInt(1_000_000),
		Refunded:     uint256.NewInt(70_000),
		BridgeAmount: uint256.NewInt(950_000),
		RelayerFee:   uint256.NewInt(10_000),
		Recipient: payload.RecipientFromAddress(
			common.HexToAddress("0xb0b"),
		),
		Payload: []byte{1, 2, 3},
		Nonce:   7,
	}
}

func testResult(nr byte, outcome settlement.Outcome) *settlement.Result {
	recipient := common.HexToAddress("0xb0b")
	result := &settlement.Result{
		MessageID: transport.MessageID{nr},
		FromChain: 2,
		Outcome:   outcome,
		Recipient: recipient,
		Caller:    common.HexToAddress("0x4e1a"),
		Amount:    uint256.NewInt(400_000),
		Change:    uint256.NewInt(0),
		Released:  uint256.NewInt(940_000),
		FeePaid:   uint256.NewInt(10_000),
		Path: []fsm.StateType{
			settlement.MessageRedeemed, settlement.PayloadValidated,
		},
		Log: &types.Log{
			Address: common.HexToAddress("0xb0b0"),
			Topics: []common.Hash{
				settlement.SwapResultTopic(),
				common.BytesToHash(recipient.Bytes()),
			},
			Data: []byte{0xde, 0xad},
		},
	}
	if outcome == settlement.OutcomeRefunded {
		result.Asset = common.HexToAddress("0xb1")
		result.TradeErr = errors.New("deadline passed")
	}

	return result
}

// TestTransfers tests storing and fetching transfers.
func TestTransfers(t *testing.T) {
	for name, store := range stores(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, second := testTransfer(1), testTransfer(2)
			require.NoError(t, store.CreateTransfer(ctx, first))
			require.NoError(t, store.CreateTransfer(ctx, second))

			err := store.CreateTransfer(ctx, first)
			require.ErrorIs(t, err, ErrDuplicate)

			fetched, err := store.FetchTransfer(ctx, first.ID)
			require.NoError(t, err)
			require.Equal(t, first, fetched)

			_, err = store.FetchTransfer(
				ctx, transport.MessageID{9},
			)
			require.ErrorIs(t, err, ErrNotFound)

			all, err := store.FetchTransfers(ctx)
			require.NoError(t, err)
			require.Equal(
				t, []*settlement.Transfer{first, second}, all,
			)
		})
	}
}

// TestResults tests storing and fetching settlements including the states
// they went through.
func TestResults(t *testing.T) {
	for name, store := range stores(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			delivered := testResult(1, settlement.OutcomeDelivered)
			refunded := testResult(2, settlement.OutcomeRefunded)

			require.NoError(t, store.CreateResult(ctx, delivered))
			require.NoError(t, store.CreateResult(ctx, refunded))

			err := store.CreateResult(ctx, refunded)
			require.ErrorIs(t, err, ErrDuplicate)

			_, err = store.FetchResult(ctx, transport.MessageID{9})
			require.ErrorIs(t, err, ErrNotFound)

			fetched, err := store.FetchResult(
				ctx, refunded.MessageID,
			)
			require.NoError(t, err)
			requireResultEqual(t, refunded, fetched)

			all, err := store.FetchResults(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			requireResultEqual(t, delivered, all[0])
			requireResultEqual(t, refunded, all[1])
		})
	}
}

func requireResultEqual(t *testing.T, expected, actual *settlement.Result) {
	t.Helper()

	require.Equal(t, expected.MessageID, actual.MessageID)
	require.Equal(t, expected.FromChain, actual.FromChain)
	require.Equal(t, expected.Outcome, actual.Outcome)
	require.Equal(t, expected.Recipient, actual.Recipient)
	require.Equal(t, expected.Asset, actual.Asset)
	require.Equal(t, expected.Caller, actual.Caller)
	require.Equal(t, expected.Amount, actual.Amount)
	require.Equal(t, expected.Change, actual.Change)
	require.Equal(t, expected.Released, actual.Released)
	require.Equal(t, expected.FeePaid, actual.FeePaid)
	require.Equal(t, expected.Path, actual.Path)
	require.Equal(t, expected.Log, actual.Log)

	if expected.TradeErr == nil {
		require.NoError(t, actual.TradeErr)
	} else {
		require.EqualError(
			t, actual.TradeErr, expected.TradeErr.Error(),
		)
	}
}

// collector is a notifier that keeps everything it is notified of.
type collector struct {
	transfers []*settlement.Transfer
	results   []*settlement.Result
}

func (c *collector) NotifyTransfer(t *settlement.Transfer) {
	c.transfers = append(c.transfers, t)
}

func (c *collector) NotifyResult(r *settlement.Result) {
	c.results = append(c.results, r)
}

// TestRecorder tests that the recorder persists records before passing them
// on.
func TestRecorder(t *testing.T) {
	store := NewStoreMock(t)
	next := &collector{}
	recorder := NewRecorder(store, next)

	transfer := testTransfer(1)
	recorder.NotifyTransfer(transfer)
	require.Equal(t, transfer, store.AssertTransferStored())
	require.Equal(t, []*settlement.Transfer{transfer}, next.transfers)

	result := testResult(1, settlement.OutcomeRefunded)
	recorder.NotifyResult(result)
	store.AssertResultStored(settlement.OutcomeRefunded)
	require.Len(t, next.results, 1)

	// A failing store does not keep the record from being passed on.
	recorder.NotifyResult(result)
	require.Len(t, next.results, 2)
	require.Len(t, store.Results, 1)
}

// TestPostgresSchema tests that the schema rewritten for postgres keeps the
// migration layout intact.
func TestPostgresSchema(t *testing.T) {
	postgresFS := newReplacerFS(sqlc.SqlSchemas, map[string]string{
		"BLOB":                "BYTEA",
		"INTEGER PRIMARY KEY": "SERIAL PRIMARY KEY",
	})

	entries, err := fs.ReadDir(postgresFS, migrationsPath)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	f, err := postgresFS.Open(
		migrationsPath + "/000001_settlements.up.sql",
	)
	require.NoError(t, err)
	defer f.Close()

	content, err := io.ReadAll(f)
	require.NoError(t, err)

	schema := string(content)
	require.NotContains(t, schema, "BLOB")
	require.Contains(t, schema, "message_id BYTEA NOT NULL UNIQUE")
	require.Contains(t, schema, "id SERIAL PRIMARY KEY")

	stat, err := f.Stat()
	require.NoError(t, err)
	require.EqualValues(t, len(content), stat.Size())
	require.True(t, strings.HasSuffix(stat.Name(), ".up.sql"))
}
