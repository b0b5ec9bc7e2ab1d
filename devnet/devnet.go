package devnet

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/ledger"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/transport"
	"github.com/highwayswap/highway/venue"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/clock"
)

// Unit is 1.0 of every devnet asset, all of which use six decimals.
const Unit = 1_000_000

// DefaultFeeTier is the fee tier of the devnet pools.
const DefaultFeeTier = 3000

var (
	// ErrUnknownChain is returned for a chain that is not part of the
	// network.
	ErrUnknownChain = errors.New("chain not part of the network")
)

// ChainConfig describes one chain of the network.
type ChainConfig struct {
	// Name is used in logs.
	Name string

	// ID is the transport chain id.
	ID transport.ChainID

	// Agent is the address of the settlement agent.
	Agent common.Address

	// Endpoint is the address of the transport endpoint.
	Endpoint common.Address

	// Pool is the address of the pool venue.
	Pool common.Address

	// BridgeAsset is the local form of the bridged asset.
	BridgeAsset common.Address

	// WrappedNative is the wrapped native asset.
	WrappedNative common.Address

	// NativeReserve is the wrapped native side of the pool.
	NativeReserve uint64

	// BridgeReserve is the bridge asset side of the pool.
	BridgeReserve uint64
}

// Config describes a network of two chains sharing one hub. The bridge
// asset is issued on the first chain and wrapped on the second.
type Config struct {
	// Version is the payload layout used by both agents.
	Version payload.Version

	// HubKey is the attestation key of the hub.
	HubKey []byte

	// FeeTiers are the fee tiers the agents allow. Pools are created at
	// the first one.
	FeeTiers []uint32

	// LiquidityProvider funds the pools.
	LiquidityProvider common.Address

	// Chains are the two chains of the network.
	Chains [2]ChainConfig

	// Clock is shared by the agents and venues.
	Clock clock.Clock

	// Notifier receives the transfers and settlements of both agents.
	Notifier settlement.Notifier
}

// DefaultConfig returns a network where a stable asset issued on chain 2 is
// bridged to chain 6.
func DefaultConfig() *Config {
	return &Config{
		Version:           payload.V3,
		HubKey:            []byte("highway devnet attestation key.."),
		FeeTiers:          []uint32{DefaultFeeTier, 500, 10000},
		LiquidityProvider: common.HexToAddress("0x1b"),
		Chains: [2]ChainConfig{
			{
				Name:          "ethereum",
				ID:            2,
				Agent:         common.HexToAddress("0xa0a0"),
				Endpoint:      common.HexToAddress("0xa0e0"),
				Pool:          common.HexToAddress("0xa0f0"),
				BridgeAsset:   common.HexToAddress("0xa1"),
				WrappedNative: common.HexToAddress("0xa2"),
				NativeReserve: 1000 * Unit,
				BridgeReserve: 1000 * Unit,
			},
			{
				Name:          "avalanche",
				ID:            6,
				Agent:         common.HexToAddress("0xb0b0"),
				Endpoint:      common.HexToAddress("0xb0e0"),
				Pool:          common.HexToAddress("0xb0f0"),
				BridgeAsset:   common.HexToAddress("0xb1"),
				WrappedNative: common.HexToAddress("0xb2"),
				NativeReserve: 500 * Unit,
				BridgeReserve: 1000 * Unit,
			},
		},
		Clock: clock.NewDefaultClock(),
	}
}

// Chain is one running chain of the network.
type Chain struct {
	// Config is the configuration the chain was created from.
	Config ChainConfig

	// Ledger holds the balances of the chain.
	Ledger *ledger.Ledger

	// Endpoint is the transport endpoint of the chain.
	Endpoint *transport.Endpoint

	// Pool is the trading venue of the chain.
	Pool *venue.PoolVenue

	// Agent is the settlement agent of the chain.
	Agent *settlement.Agent
}

// Network is a running devnet.
type Network struct {
	cfg *Config

	// Hub carries messages between the chains.
	Hub *transport.Hub

	chains []*Chain
}

// New creates the hub, ledgers, pools and agents described by cfg.
func New(cfg *Config) (*Network, error) {
	if len(cfg.FeeTiers) == 0 {
		return nil, errors.New("no fee tiers")
	}

	feeMode := transport.FeeModeDeduct
	if cfg.Version == payload.V2 {
		feeMode = transport.FeeModeRelease
	}

	hub, err := transport.NewHub(cfg.HubKey)
	if err != nil {
		return nil, err
	}

	home, foreign := cfg.Chains[0], cfg.Chains[1]
	err = hub.RegisterAsset(
		home.ID, home.BridgeAsset, map[transport.ChainID]common.Address{
			foreign.ID: foreign.BridgeAsset,
		},
	)
	if err != nil {
		return nil, err
	}

	n := &Network{
		cfg: cfg,
		Hub: hub,
	}

	for i, chainCfg := range cfg.Chains {
		peer := cfg.Chains[1-i]
		chain, err := n.newChain(chainCfg, peer, feeMode)
		if err != nil {
			return nil, fmt.Errorf("unable to create chain %v: %w",
				chainCfg.Name, err)
		}

		n.chains = append(n.chains, chain)
	}

	return n, nil
}

func (n *Network) newChain(cfg, peer ChainConfig,
	feeMode transport.FeeMode) (*Chain, error) {

	endpoint, err := n.Hub.NewEndpoint(cfg.ID, cfg.Endpoint, feeMode)
	if err != nil {
		return nil, err
	}

	l := ledger.New(cfg.Name, cfg.WrappedNative)
	pool := venue.NewPoolVenue(cfg.Pool, n.cfg.Clock)
	lp := n.cfg.LiquidityProvider

	err = l.Atomic(func(tx *ledger.Tx) error {
		native := uint256.NewInt(cfg.NativeReserve)
		bridge := uint256.NewInt(cfg.BridgeReserve)

		if err := tx.Mint(ledger.NativeAsset, lp, native); err != nil {
			return err
		}
		if err := tx.Wrap(lp, native); err != nil {
			return err
		}
		if err := tx.Mint(cfg.BridgeAsset, lp, bridge); err != nil {
			return err
		}

		key := venue.NewPoolKey(
			cfg.BridgeAsset, cfg.WrappedNative, n.cfg.FeeTiers[0],
		)
		amountA, amountB := bridge, native
		if key.TokenA != cfg.BridgeAsset {
			amountA, amountB = amountB, amountA
		}

		return pool.AddLiquidity(tx, lp, key, amountA, amountB)
	})
	if err != nil {
		return nil, fmt.Errorf("unable to fund pool: %w", err)
	}

	agent, err := settlement.New(&settlement.Config{
		ChainID:       cfg.ID,
		Address:       cfg.Agent,
		BridgeAsset:   cfg.BridgeAsset,
		WrappedNative: cfg.WrappedNative,
		Version:       n.cfg.Version,
		PoolFees:      n.cfg.FeeTiers,
		Routes: map[transport.ChainID]settlement.Route{
			peer.ID: {
				Agent:         peer.Agent,
				BridgeAsset:   peer.BridgeAsset,
				WrappedNative: peer.WrappedNative,
			},
		},
		Ledger:    l,
		Venue:     pool,
		Transport: endpoint,
		Clock:     n.cfg.Clock,
		Notifier:  n.cfg.Notifier,
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Chain %v (%v) ready, agent %v, bridge asset %v", cfg.Name,
		cfg.ID, cfg.Agent, cfg.BridgeAsset)

	return &Chain{
		Config:   cfg,
		Ledger:   l,
		Endpoint: endpoint,
		Pool:     pool,
		Agent:    agent,
	}, nil
}

// FeeTier returns the fee tier of the pools.
func (n *Network) FeeTier() uint32 {
	return n.cfg.FeeTiers[0]
}

// Version returns the payload layout used by the agents.
func (n *Network) Version() payload.Version {
	return n.cfg.Version
}

// Chains returns the chains of the network.
func (n *Network) Chains() []*Chain {
	return n.chains
}

// Chain returns the chain with the given id.
func (n *Network) Chain(id transport.ChainID) (*Chain, error) {
	for _, chain := range n.chains {
		if chain.Config.ID == id {
			return chain, nil
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrUnknownChain, id)
}

// Peer returns the other chain of the network.
func (n *Network) Peer(id transport.ChainID) (*Chain, error) {
	for _, chain := range n.chains {
		if chain.Config.ID != id {
			return chain, nil
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrUnknownChain, id)
}

// Fund mints amount of asset to account on the given chain. The zero address
// funds the native asset.
func (n *Network) Fund(id transport.ChainID, account, asset common.Address,
	amount *uint256.Int) error {

	chain, err := n.Chain(id)
	if err != nil {
		return err
	}

	return chain.Ledger.Mint(asset, account, amount)
}

// NativeSwap returns a native to native swap request from the chain with id
// from to its peer. The amounts are left to the caller.
func (n *Network) NativeSwap(from transport.ChainID, sender,
	recipient common.Address, mode payload.TradeMode,
	deadline uint64) (*settlement.SwapRequest, error) {

	origin, err := n.Chain(from)
	if err != nil {
		return nil, err
	}
	target, err := n.Peer(from)
	if err != nil {
		return nil, err
	}

	feeTier := n.FeeTier()

	return &settlement.SwapRequest{
		Sender:    sender,
		TradeMode: mode,
		LegKind:   payload.LegKindNative,
		Path: [4]common.Address{
			origin.Config.WrappedNative, origin.Config.BridgeAsset,
			target.Config.BridgeAsset, target.Config.WrappedNative,
		},
		PoolFee:            feeTier,
		DestinationPoolFee: feeTier,
		Deadline:           deadline,
		TargetChain:        target.Config.ID,
		TargetRecipient:    payload.RecipientFromAddress(recipient),
	}, nil
}
