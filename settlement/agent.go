package settlement

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/ledger"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/transport"
	"github.com/highwayswap/highway/venue"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// defaultObserverSize is the number of transitions kept by the state
	// machines. It covers the longest path of both machines.
	defaultObserverSize = 15
)

// Agent is the settlement agent of one chain. It sends swaps to the agents of
// other chains and settles the swaps they send to it.
type Agent struct {
	cfg      *Config
	codec    *payload.Codec
	adapter  *venue.Adapter
	poolFees map[uint32]struct{}
}

// New creates a settlement agent.
func New(cfg *Config) (*Agent, error) {
	switch {
	case cfg.Ledger == nil:
		return nil, errors.New("ledger required")

	case cfg.Venue == nil:
		return nil, errors.New("venue required")

	case cfg.Transport == nil:
		return nil, errors.New("transport required")

	case cfg.Address == (common.Address{}):
		return nil, errors.New("agent address required")

	case cfg.BridgeAsset == (common.Address{}):
		return nil, errors.New("bridge asset required")

	case len(cfg.PoolFees) == 0:
		return nil, errors.New("at least one pool fee tier required")
	}

	if cfg.Transport.ChainID() != cfg.ChainID {
		return nil, fmt.Errorf("transport is attached to %v, agent "+
			"runs on %v", cfg.Transport.ChainID(), cfg.ChainID)
	}

	// Each payload version comes with its own relayer fee contract, so
	// the transport has to agree with it.
	var wantMode transport.FeeMode
	switch cfg.Version {
	case payload.V3:
		wantMode = transport.FeeModeDeduct

	case payload.V2:
		wantMode = transport.FeeModeRelease

	default:
		return nil, fmt.Errorf("unknown protocol version %v",
			cfg.Version)
	}
	if cfg.Transport.FeeMode() != wantMode {
		return nil, fmt.Errorf("protocol %v requires fee mode %v, "+
			"transport uses %v", cfg.Version, wantMode,
			cfg.Transport.FeeMode())
	}

	codec, err := payload.NewCodec(cfg.Version)
	if err != nil {
		return nil, err
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	poolFees := make(map[uint32]struct{}, len(cfg.PoolFees))
	for _, fee := range cfg.PoolFees {
		poolFees[fee] = struct{}{}
	}

	return &Agent{
		cfg:   cfg,
		codec: codec,
		adapter: venue.NewAdapter(
			cfg.Venue, cfg.Address, cfg.WrappedNative,
		),
		poolFees: poolFees,
	}, nil
}

// ChainID returns the chain the agent runs on.
func (a *Agent) ChainID() transport.ChainID {
	return a.cfg.ChainID
}

// Address returns the address of the agent.
func (a *Agent) Address() common.Address {
	return a.cfg.Address
}

// Version returns the protocol version of the agent.
func (a *Agent) Version() payload.Version {
	return a.cfg.Version
}

// Codec returns the payload codec of the agent.
func (a *Agent) Codec() *payload.Codec {
	return a.codec
}

// Route returns the route to the given chain.
func (a *Agent) Route(chain transport.ChainID) (Route, bool) {
	route, ok := a.cfg.Routes[chain]
	return route, ok
}

// allowedFee returns true if fee is one of the given tiers, or of the
// agent's tiers if none are given.
func (a *Agent) allowedFee(fee uint32, tiers []uint32) bool {
	if len(tiers) == 0 {
		_, ok := a.poolFees[fee]
		return ok
	}

	for _, tier := range tiers {
		if tier == fee {
			return true
		}
	}

	return false
}

// custody records the balances of the agent at the start of a call so that
// the call can prove it leaves them untouched.
type custody struct {
	tx     *ledger.Tx
	holder common.Address
	assets []common.Address
	before []*uint256.Int
}

// takeCustody snapshots the holder's balances of the given assets.
func takeCustody(tx *ledger.Tx, holder common.Address,
	assets ...common.Address) *custody {

	c := &custody{
		tx:     tx,
		holder: holder,
	}

	seen := make(map[common.Address]struct{}, len(assets))
	for _, asset := range assets {
		if _, ok := seen[asset]; ok {
			continue
		}
		seen[asset] = struct{}{}

		c.assets = append(c.assets, asset)
		c.before = append(c.before, tx.BalanceOf(asset, holder))
	}

	return c
}

// verify fails if any of the recorded balances changed.
func (c *custody) verify() error {
	for i, asset := range c.assets {
		after := c.tx.BalanceOf(asset, c.holder)
		if !after.Eq(c.before[i]) {
			return fmt.Errorf("%w: %v went from %v to %v",
				ErrCustody, asset, c.before[i], after)
		}
	}

	return nil
}

// balanceDelta returns after - before, failing if the balance shrank.
func balanceDelta(before, after *uint256.Int) (*uint256.Int, error) {
	if after.Lt(before) {
		return nil, fmt.Errorf("%w: balance dropped from %v to %v",
			ErrCustody, before, after)
	}

	return new(uint256.Int).Sub(after, before), nil
}
