package highway

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/devnet"
	"github.com/highwayswap/highway/ledger"
	"github.com/highwayswap/highway/notifications"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/relayer"
	"github.com/highwayswap/highway/settledb"
	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/test"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

var (
	testTime = time.Unix(1_700_000_000, 0)

	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
	relay = common.HexToAddress("0x4e1a")
)

type clientTest struct {
	t       *testing.T
	clock   *clock.TestClock
	network *devnet.Network
	store   *settledb.SqliteStore
	relayer *relayer.Relayer
	client  *Client
	cancel  func()
}

func newClientTest(t *testing.T, tick ticker.Ticker) *clientTest {
	testClock := clock.NewTestClock(testTime)
	store := settledb.NewTestSqliteDB(t, testClock)
	manager := notifications.NewManager(&notifications.Config{})

	cfg := devnet.DefaultConfig()
	cfg.Clock = testClock
	cfg.Notifier = settledb.NewRecorder(store, manager)

	network, err := devnet.New(cfg)
	require.NoError(t, err)

	target := network.Chains()[1]
	checkpoint, err := relayer.OpenCheckpoint(t.TempDir(), testClock)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, checkpoint.Close())
	})

	r, err := relayer.New(&relayer.Config{
		Settler:       target.Agent,
		Source:        network.Hub,
		Caller:        relay,
		WrappedNative: target.Config.WrappedNative,
		Checkpoint:    checkpoint,
		Ticker:        tick,
	})
	require.NoError(t, err)

	client, err := NewClient(&ClientConfig{
		Network:       network,
		Notifications: manager,
		Store:         store,
		Clock:         testClock,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = manager.Run(ctx)
	}()

	err = network.Fund(
		cfg.Chains[0].ID, alice, ledger.NativeAsset,
		uint256.NewInt(10*devnet.Unit),
	)
	require.NoError(t, err)

	return &clientTest{
		t:       t,
		clock:   testClock,
		network: network,
		store:   store,
		relayer: r,
		client:  client,
		cancel: func() {
			cancel()
			<-done
		},
	}
}

func (c *clientTest) request(mode payload.TradeMode,
	amount uint64) *SwapRequest {

	return &SwapRequest{
		From:        c.network.Chains()[0].Config.ID,
		Sender:      alice,
		Recipient:   bob,
		Mode:        mode,
		Amount:      uint256.NewInt(amount),
		RelayerFee:  uint256.NewInt(10_000),
		SlippageBps: 50,
	}
}

func (c *clientTest) bobNative() *uint256.Int {
	target := c.network.Chains()[1]
	return target.Ledger.BalanceOf(ledger.NativeAsset, bob)
}

// TestSwapDelivered tests a swap that is settled by a running relayer.
func TestSwapDelivered(t *testing.T) {
	tick := ticker.New(10 * time.Millisecond)
	c := newClientTest(t, tick)
	defer c.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	relayDone := make(chan error, 1)
	go func() {
		relayDone <- c.relayer.Run(ctx)
	}()
	defer func() {
		cancel()
		require.NoError(t, <-relayDone)
	}()

	quote, err := c.client.Quote(ctx, &QuoteRequest{
		From:       c.network.Chains()[0].Config.ID,
		Mode:       payload.ExactIn,
		Amount:     uint256.NewInt(devnet.Unit),
		RelayerFee: uint256.NewInt(10_000),
	})
	require.NoError(t, err)

	swapCtx, swapCancel := context.WithTimeout(ctx, test.Timeout)
	defer swapCancel()

	info, err := c.client.Swap(
		swapCtx, c.request(payload.ExactIn, devnet.Unit),
	)
	require.NoError(t, err)
	require.Equal(t, StateDelivered, info.State)
	require.Equal(t, quote.AmountOut, info.Result.Amount)
	require.Equal(t, quote.AmountOut, c.bobNative())

	swaps, err := c.client.FetchSwaps(ctx)
	require.NoError(t, err)
	require.Len(t, swaps, 1)
	require.Equal(t, StateDelivered, swaps[0].State)
	require.Equal(t, info.ID, swaps[0].ID)
}

// TestSwapExactOut tests that an exact output swap delivers the exact
// amount.
func TestSwapExactOut(t *testing.T) {
	c := newClientTest(t, ticker.NewForce(time.Hour))
	defer c.cancel()

	ctx := context.Background()
	transfer, err := c.client.Initiate(
		ctx, c.request(payload.ExactOut, 300_000),
	)
	require.NoError(t, err)

	info, err := c.client.FetchSwap(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StateInFlight, info.State)

	n, err := c.relayer.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	result, err := c.client.WaitSettlement(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, settlement.OutcomeDelivered, result.Outcome)
	require.Equal(t, uint256.NewInt(300_000), c.bobNative())
}

// TestSwapRefunded tests a swap whose destination leg misses its deadline.
func TestSwapRefunded(t *testing.T) {
	c := newClientTest(t, ticker.NewForce(time.Hour))
	defer c.cancel()

	ctx := context.Background()
	transfer, err := c.client.Initiate(
		ctx, c.request(payload.ExactIn, devnet.Unit),
	)
	require.NoError(t, err)

	c.clock.SetTime(testTime.Add(time.Hour))

	_, err = c.relayer.Poll(ctx)
	require.NoError(t, err)

	result, err := c.client.WaitSettlement(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, settlement.OutcomeRefunded, result.Outcome)
	require.True(t, c.bobNative().IsZero())

	info, err := c.client.FetchSwap(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StateRefunded, info.State)
}

// TestSwapFailed tests that a failing origin call leaves nothing behind.
func TestSwapFailed(t *testing.T) {
	c := newClientTest(t, ticker.NewForce(time.Hour))
	defer c.cancel()

	ctx := context.Background()
	req := c.request(payload.ExactIn, devnet.Unit)
	req.Sender = common.HexToAddress("0xdead")

	info, err := c.client.Swap(ctx, req)
	require.Error(t, err)
	require.Equal(t, StateFailed, info.State)
	require.Equal(t, err, info.Err)

	swaps, err := c.client.FetchSwaps(ctx)
	require.NoError(t, err)
	require.Empty(t, swaps)

	// A relayer fee the swap cannot cover is refused before anything
	// happens.
	req = c.request(payload.ExactIn, 1000)
	_, err = c.client.Swap(ctx, req)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in       string
		expected uint64
		err      bool
	}{
		{in: "1", expected: 1_000_000},
		{in: "0.25", expected: 250_000},
		{in: "12.000001", expected: 12_000_001},
		{in: "0.0000001", err: true},
		{in: "-1", err: true},
		{in: "abc", err: true},
	}

	for _, tc := range tests {
		amount, err := ParseAmount(tc.in, DefaultDecimals)
		if tc.err {
			require.ErrorIs(t, err, ErrInvalidAmount, tc.in)
			continue
		}

		require.NoError(t, err, tc.in)
		require.Equal(t, uint256.NewInt(tc.expected), amount, tc.in)
	}

	require.Equal(t, "12.000001", FormatAmount(
		uint256.NewInt(12_000_001), DefaultDecimals,
	))
	require.Equal(t, "0", FormatAmount(nil, DefaultDecimals))
}

func TestApplySlippage(t *testing.T) {
	amount := uint256.NewInt(1_000_000)

	require.Equal(t, uint256.NewInt(995_000),
		applySlippage(amount, 50, false))
	require.Equal(t, uint256.NewInt(1_005_000),
		applySlippage(amount, 50, true))
	require.Equal(t, uint256.NewInt(2), applySlippage(
		uint256.NewInt(1), 50, true,
	))
}
