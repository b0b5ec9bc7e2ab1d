package settlement

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/ledger"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/transport"
	"github.com/highwayswap/highway/venue"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

const (
	chainA = transport.ChainID(2)
	chainB = transport.ChainID(6)

	feeTier = 3000

	// unit is 1.0 of every asset in the tests.
	unit = 1_000_000
)

var (
	testTime = time.Unix(1_700_000_000, 0)
	deadline = uint64(testTime.Unix()) + 600

	usdcA = common.HexToAddress("0xa1")
	wethA = common.HexToAddress("0xa2")
	usdcB = common.HexToAddress("0xb1")
	wavax = common.HexToAddress("0xb2")

	agentAddrA    = common.HexToAddress("0xa0a0")
	agentAddrB    = common.HexToAddress("0xb0b0")
	endpointAddrA = common.HexToAddress("0xa0e0")
	endpointAddrB = common.HexToAddress("0xb0e0")
	poolAddrA     = common.HexToAddress("0xa0f0")
	poolAddrB     = common.HexToAddress("0xb0f0")

	alice   = common.HexToAddress("0xa11ce")
	bob     = common.HexToAddress("0xb0b")
	relayer = common.HexToAddress("0x4e1a")
	lp      = common.HexToAddress("0x1b")

	hubKey = bytes.Repeat([]byte{0x11}, 32)

	nativePath = [4]common.Address{wethA, usdcA, usdcB, wavax}
)

func amt(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// recordingNotifier collects committed outcomes.
type recordingNotifier struct {
	mtx       sync.Mutex
	transfers []*Transfer
	results   []*Result
}

func (r *recordingNotifier) NotifyTransfer(t *Transfer) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.transfers = append(r.transfers, t)
}

func (r *recordingNotifier) NotifyResult(res *Result) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.results = append(r.results, res)
}

// testChain is one side of the test setup.
type testChain struct {
	ledger   *ledger.Ledger
	endpoint *transport.Endpoint
	venue    venue.Venue
	agent    *Agent
	notifier *recordingNotifier
}

// testContext connects two chains through a hub. The bridge asset lives on
// chain A and is wrapped on chain B.
type testContext struct {
	t       *testing.T
	version payload.Version
	clock   *clock.TestClock
	hub     *transport.Hub
	a       *testChain
	b       *testChain
}

type testOption func(*testContext, *Config)

// withVenue replaces the pool venue of one chain.
func withVenue(chain transport.ChainID, v venue.Venue) testOption {
	return func(_ *testContext, cfg *Config) {
		if cfg.ChainID == chain {
			cfg.Venue = v
		}
	}
}

// withRecipientOnly makes chain A send recipient-only payloads to chain B.
func withRecipientOnly() testOption {
	return func(_ *testContext, cfg *Config) {
		if cfg.ChainID != chainA {
			return
		}

		route := cfg.Routes[chainB]
		route.RecipientOnly = true
		cfg.Routes[chainB] = route
	}
}

func newTestContext(t *testing.T, version payload.Version,
	opts ...testOption) *testContext {

	t.Helper()

	feeMode := transport.FeeModeDeduct
	if version == payload.V2 {
		feeMode = transport.FeeModeRelease
	}

	hub, err := transport.NewHub(hubKey)
	require.NoError(t, err)

	endpointA, err := hub.NewEndpoint(chainA, endpointAddrA, feeMode)
	require.NoError(t, err)
	endpointB, err := hub.NewEndpoint(chainB, endpointAddrB, feeMode)
	require.NoError(t, err)

	err = hub.RegisterAsset(
		chainA, usdcA, map[transport.ChainID]common.Address{
			chainB: usdcB,
		},
	)
	require.NoError(t, err)

	c := &testContext{
		t:       t,
		version: version,
		clock:   clock.NewTestClock(testTime),
		hub:     hub,
	}

	c.a = c.newChain(
		"A", chainA, agentAddrA, usdcA, wethA, endpointA,
		poolAddrA, Route{
			Agent:         agentAddrB,
			BridgeAsset:   usdcB,
			WrappedNative: wavax,
		}, unit*1000, opts...,
	)
	c.b = c.newChain(
		"B", chainB, agentAddrB, usdcB, wavax, endpointB,
		poolAddrB, Route{
			Agent:         agentAddrA,
			BridgeAsset:   usdcA,
			WrappedNative: wethA,
		}, unit*500, opts...,
	)

	err = c.a.ledger.Mint(ledger.NativeAsset, alice, amt(5*unit))
	require.NoError(t, err)

	return c
}

// newChain creates the ledger, pool, endpoint and agent of one chain. The
// pool pairs 1000 of the bridge asset with nativeReserve of wrapped native.
func (c *testContext) newChain(name string, chain transport.ChainID,
	agentAddr, bridge, wrapped common.Address,
	endpoint *transport.Endpoint, poolAddr common.Address, route Route,
	nativeReserve uint64, opts ...testOption) *testChain {

	t := c.t
	l := ledger.New(name, wrapped)
	pool := venue.NewPoolVenue(poolAddr, c.clock)

	err := l.Atomic(func(tx *ledger.Tx) error {
		err := tx.Mint(ledger.NativeAsset, lp, amt(nativeReserve))
		if err != nil {
			return err
		}
		if err := tx.Wrap(lp, amt(nativeReserve)); err != nil {
			return err
		}
		if err := tx.Mint(bridge, lp, amt(1000*unit)); err != nil {
			return err
		}

		key := venue.NewPoolKey(bridge, wrapped, feeTier)
		amountA, amountB := amt(1000*unit), amt(nativeReserve)
		if key.TokenA != bridge {
			amountA, amountB = amountB, amountA
		}

		return pool.AddLiquidity(tx, lp, key, amountA, amountB)
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	cfg := &Config{
		ChainID:       chain,
		Address:       agentAddr,
		BridgeAsset:   bridge,
		WrappedNative: wrapped,
		Version:       c.version,
		PoolFees:      []uint32{500, feeTier, 10000},
		Routes: map[transport.ChainID]Route{
			endpointPeer(chain): route,
		},
		Ledger:    l,
		Venue:     pool,
		Transport: endpoint,
		Clock:     c.clock,
		Notifier:  notifier,
	}
	for _, opt := range opts {
		opt(c, cfg)
	}

	agent, err := New(cfg)
	require.NoError(t, err)

	return &testChain{
		ledger:   l,
		endpoint: endpoint,
		venue:    cfg.Venue,
		agent:    agent,
		notifier: notifier,
	}
}

func endpointPeer(chain transport.ChainID) transport.ChainID {
	if chain == chainA {
		return chainB
	}

	return chainA
}

// nativeRequest returns a native to native swap request from alice to bob.
func nativeRequest(mode payload.TradeMode) *SwapRequest {
	return &SwapRequest{
		Sender:             alice,
		TradeMode:          mode,
		LegKind:            payload.LegKindNative,
		AmountIn:           amt(unit),
		TargetAmount:       amt(950_000),
		DestinationAmount:  amt(400_000),
		Path:               nativePath,
		PoolFee:            feeTier,
		DestinationPoolFee: feeTier,
		Deadline:           deadline,
		RelayerFee:         amt(10_000),
		TargetChain:        chainB,
		TargetRecipient:    payload.RecipientFromAddress(bob),
		Nonce:              7,
	}
}

// message returns the only pending message addressed to chain B.
func (c *testContext) message() *transport.AttestedMessage {
	pending := c.hub.Pending(chainB)
	require.Len(c.t, pending, 1)

	return pending[0]
}

// sendRaw transfers amount of the bridge asset from chain A to the agent of
// chain B with an arbitrary payload.
func (c *testContext) sendRaw(raw []byte,
	amount uint64) *transport.AttestedMessage {

	t := c.t

	require.NoError(t, c.a.ledger.Mint(usdcA, alice, amt(amount)))

	err := c.a.ledger.Atomic(func(tx *ledger.Tx) error {
		_, err := c.a.endpoint.TransferWithPayload(
			context.Background(), tx, alice,
			&transport.TransferRequest{
				Asset:       usdcA,
				Amount:      amt(amount),
				TargetChain: chainB,
				TargetRecipient: transport.AddressToBytes32(
					agentAddrB,
				),
				RelayerFee: amt(10_000),
				Payload:    raw,
			},
		)

		return err
	})
	require.NoError(t, err)

	return c.message()
}

// encode encodes a payload with the codec of the test version.
func (c *testContext) encode(p *payload.Payload) []byte {
	codec, err := payload.NewCodec(c.version)
	require.NoError(c.t, err)

	raw, err := codec.Encode(p)
	require.NoError(c.t, err)

	return raw
}

// requireAgentsEmpty asserts that neither agent holds anything.
func (c *testContext) requireAgentsEmpty() {
	t := c.t

	for _, asset := range []common.Address{
		ledger.NativeAsset, usdcA, wethA,
	} {
		bal := c.a.ledger.BalanceOf(asset, agentAddrA)
		require.True(t, bal.IsZero(), "agent A holds %v", asset)
	}
	for _, asset := range []common.Address{
		ledger.NativeAsset, usdcB, wavax,
	} {
		bal := c.b.ledger.BalanceOf(asset, agentAddrB)
		require.True(t, bal.IsZero(), "agent B holds %v", asset)
	}
}
