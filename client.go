package highway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/highwayswap/highway/devnet"
	"github.com/highwayswap/highway/notifications"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/settledb"
	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/transport"
	"github.com/highwayswap/highway/venue"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/clock"
)

// DefaultExpiry is how long a swap may take if the request does not say.
const DefaultExpiry = 10 * time.Minute

var (
	// ErrNoPool is returned when a chain has no pool for the swap.
	ErrNoPool = errors.New("no pool for pair")
)

// ClientConfig contains the services the client needs.
type ClientConfig struct {
	// Network holds the agents and pools of both chains.
	Network *devnet.Network

	// Notifications delivers the settlements of both agents.
	Notifications *notifications.Manager

	// Store holds committed transfers and settlements.
	Store settledb.Store

	// Clock is used to derive deadlines.
	Clock clock.Clock
}

// Client submits native to native swaps and follows them until they
// settle.
type Client struct {
	cfg *ClientConfig
}

// NewClient returns a new instance to initiate swaps with.
func NewClient(cfg *ClientConfig) (*Client, error) {
	switch {
	case cfg.Network == nil:
		return nil, errors.New("no network")

	case cfg.Notifications == nil:
		return nil, errors.New("no notification manager")

	case cfg.Store == nil:
		return nil, errors.New("no store")
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Client{
		cfg: cfg,
	}, nil
}

// legs returns the origin and target chain of a swap starting on from.
func (c *Client) legs(from transport.ChainID) (*devnet.Chain, *devnet.Chain,
	error) {

	origin, err := c.cfg.Network.Chain(from)
	if err != nil {
		return nil, nil, err
	}
	target, err := c.cfg.Network.Peer(from)
	if err != nil {
		return nil, nil, err
	}

	return origin, target, nil
}

// reserves returns the reserves of a chain's pool as wrapped native and
// bridge asset.
func reserves(chain *devnet.Chain, fee uint32) (*uint256.Int, *uint256.Int,
	error) {

	native, bridge, ok := chain.Pool.Reserves(
		chain.Config.WrappedNative, chain.Config.BridgeAsset, fee,
	)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %v on %v", ErrNoPool, fee,
			chain.Config.Name)
	}

	return native, bridge, nil
}

// Quote returns the amounts a swap is expected to move at current reserves.
func (c *Client) Quote(_ context.Context, req *QuoteRequest) (*Quote,
	error) {

	if req.Amount == nil || req.Amount.IsZero() {
		return nil, fmt.Errorf("%w: zero amount", ErrInvalidAmount)
	}

	fee := req.RelayerFee
	if fee == nil {
		fee = new(uint256.Int)
	}

	origin, target, err := c.legs(req.From)
	if err != nil {
		return nil, err
	}

	tier := c.cfg.Network.FeeTier()
	originNative, originBridge, err := reserves(origin, tier)
	if err != nil {
		return nil, err
	}
	targetNative, targetBridge, err := reserves(target, tier)
	if err != nil {
		return nil, err
	}

	quote := &Quote{}
	switch req.Mode {
	case payload.ExactIn:
		quote.AmountIn = req.Amount
		quote.BridgeAmount, err = venue.QuoteExactIn(
			req.Amount, originNative, originBridge, tier,
		)
		if err != nil {
			return nil, err
		}
		if !fee.Lt(quote.BridgeAmount) {
			return nil, fmt.Errorf("%w: relayer fee %v exceeds "+
				"bridged amount %v", ErrInvalidAmount, fee,
				quote.BridgeAmount)
		}

		quote.Released = new(uint256.Int).Sub(quote.BridgeAmount, fee)
		quote.AmountOut, err = venue.QuoteExactIn(
			quote.Released, targetBridge, targetNative, tier,
		)
		if err != nil {
			return nil, err
		}

	case payload.ExactOut:
		quote.AmountOut = req.Amount
		quote.Released, err = venue.QuoteExactOut(
			req.Amount, targetBridge, targetNative, tier,
		)
		if err != nil {
			return nil, err
		}

		quote.BridgeAmount = new(uint256.Int).Add(quote.Released, fee)
		quote.AmountIn, err = venue.QuoteExactOut(
			quote.BridgeAmount, originNative, originBridge, tier,
		)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown trade mode %v", req.Mode)
	}

	return quote, nil
}

// buildRequest quotes the swap and derives the limits of both legs from the
// quote and the slippage tolerance.
func (c *Client) buildRequest(ctx context.Context,
	req *SwapRequest) (*settlement.SwapRequest, error) {

	if req.SlippageBps >= 10_000 {
		return nil, fmt.Errorf("slippage of %d bps too large",
			req.SlippageBps)
	}

	fee := req.RelayerFee
	if fee == nil {
		fee = new(uint256.Int)
	}

	quote, err := c.Quote(ctx, &QuoteRequest{
		From:       req.From,
		Mode:       req.Mode,
		Amount:     req.Amount,
		RelayerFee: fee,
	})
	if err != nil {
		return nil, err
	}

	expiry := req.Expiry
	if expiry == 0 {
		expiry = DefaultExpiry
	}
	now := c.cfg.Clock.Now()
	deadline := now.Add(expiry).Unix()

	swap, err := c.cfg.Network.NativeSwap(
		req.From, req.Sender, req.Recipient, req.Mode, uint64(deadline),
	)
	if err != nil {
		return nil, err
	}
	swap.RelayerFee = fee

	// Message ids are digests of the message, so the nonce keeps two
	// identical swaps of a restarted network apart in the journal.
	swap.Nonce = uint32(now.UnixNano())

	switch req.Mode {
	case payload.ExactIn:
		swap.AmountIn = quote.AmountIn
		swap.TargetAmount = applySlippage(
			quote.BridgeAmount, req.SlippageBps, false,
		)
		swap.DestinationAmount = applySlippage(
			quote.AmountOut, req.SlippageBps, false,
		)

	case payload.ExactOut:
		swap.AmountIn = applySlippage(
			quote.AmountIn, req.SlippageBps, true,
		)

		swap.TargetAmount = quote.BridgeAmount
		swap.DestinationAmount = quote.AmountOut
	}

	return swap, nil
}

// Initiate submits a swap on the origin chain and returns the committed
// transfer.
func (c *Client) Initiate(ctx context.Context,
	req *SwapRequest) (*settlement.Transfer, error) {

	swap, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	origin, err := c.cfg.Network.Chain(req.From)
	if err != nil {
		return nil, err
	}

	transfer, err := origin.Agent.Swap(ctx, swap)
	if err != nil {
		log.Warnf("Swap from %v on %v failed: %v", req.Sender, req.From,
			err)

		return nil, err
	}

	swapLog := &SwapLog{Logger: log, ID: transfer.ID}
	swapLog.Infof("Swap of %v to %v initiated, bridging %v",
		transfer.AmountIn, req.Recipient, transfer.BridgeAmount)

	return transfer, nil
}

// WaitSettlement blocks until the message with the given id settles or the
// context is canceled.
func (c *Client) WaitSettlement(ctx context.Context,
	id transport.MessageID) (*settlement.Result, error) {

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := c.cfg.Notifications.SubscribeResults(subCtx)

	// Settlements are stored before they are announced, so a settlement
	// that happened before subscribing is found in the store.
	result, err := c.cfg.Store.FetchResult(ctx, id)
	switch {
	case err == nil:
		return result, nil

	case !errors.Is(err, settledb.ErrNotFound):
		return nil, err
	}

	for {
		select {
		case result, ok := <-results:
			if !ok {
				return nil, ctx.Err()
			}
			if result.MessageID == id {
				return result, nil
			}

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Swap submits a swap and waits for it to settle. A swap whose origin call
// fails is returned in StateFailed along with the error.
func (c *Client) Swap(ctx context.Context, req *SwapRequest) (*SwapInfo,
	error) {

	transfer, err := c.Initiate(ctx, req)
	if err != nil {
		return &SwapInfo{
			State: StateFailed,
			Err:   err,
		}, err
	}

	info := &SwapInfo{
		ID:       transfer.ID,
		State:    StateInFlight,
		Transfer: transfer,
	}

	result, err := c.WaitSettlement(ctx, transfer.ID)
	if err != nil {
		return info, err
	}

	info.Result = result
	info.State = stateFromResult(result)

	swapLog := &SwapLog{Logger: log, ID: transfer.ID}
	swapLog.Infof("Swap settled: %v", info.State)

	return info, nil
}

// FetchSwaps returns every swap sent from either chain along with its
// settlement, if any.
func (c *Client) FetchSwaps(ctx context.Context) ([]*SwapInfo, error) {
	transfers, err := c.cfg.Store.FetchTransfers(ctx)
	if err != nil {
		return nil, err
	}

	results, err := c.cfg.Store.FetchResults(ctx)
	if err != nil {
		return nil, err
	}

	settled := make(map[transport.MessageID]*settlement.Result)
	for _, result := range results {
		settled[result.MessageID] = result
	}

	swaps := make([]*SwapInfo, 0, len(transfers))
	for _, transfer := range transfers {
		result := settled[transfer.ID]
		swaps = append(swaps, &SwapInfo{
			ID:       transfer.ID,
			State:    stateFromResult(result),
			Transfer: transfer,
			Result:   result,
		})
	}

	return swaps, nil
}

// FetchSwap returns the swap carried by the given message.
func (c *Client) FetchSwap(ctx context.Context,
	id transport.MessageID) (*SwapInfo, error) {

	transfer, err := c.cfg.Store.FetchTransfer(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := c.cfg.Store.FetchResult(ctx, id)
	switch {
	case errors.Is(err, settledb.ErrNotFound):
		result = nil

	case err != nil:
		return nil, err
	}

	return &SwapInfo{
		ID:       id,
		State:    stateFromResult(result),
		Transfer: transfer,
		Result:   result,
	}, nil
}
