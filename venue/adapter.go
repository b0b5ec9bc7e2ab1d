package venue

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/ledger"
	"github.com/holiman/uint256"
)

// Trade describes one leg as seen by a settlement agent. The agent holds the
// input before the trade.
type Trade struct {
	// AssetIn is the input asset. It is ignored if NativeIn is set.
	AssetIn common.Address

	// AssetOut is the output asset. If NativeOut is set it must be the
	// wrapped native asset.
	AssetOut common.Address

	// Amount is the exact input for exact input trades and the maximum
	// input for exact output trades.
	Amount *uint256.Int

	// Limit is the minimum output for exact input trades and the exact
	// output for exact output trades.
	Limit *uint256.Int

	// PoolFee is the fee tier of the pool to trade against.
	PoolFee uint32

	// Deadline is the unix timestamp after which the trade fails.
	Deadline uint64

	// Recipient receives the output.
	Recipient common.Address

	// Refundee receives the unused input of an exact output trade. It is
	// the original payer of the leg.
	Refundee common.Address

	// NativeIn wraps the native input before trading.
	NativeIn bool

	// NativeOut unwraps the output before delivering it.
	NativeOut bool
}

// Outcome is the tagged result of a trade. Err is nil on success.
type Outcome struct {
	// AmountIn is the input consumed by the trade.
	AmountIn *uint256.Int

	// AmountOut is the output delivered to the recipient.
	AmountOut *uint256.Int

	// Refunded is the unused input returned to the refundee.
	Refunded *uint256.Int

	// Err is the reason the trade failed.
	Err error
}

// Ok returns true if the trade succeeded.
func (o Outcome) Ok() bool {
	return o.Err == nil
}

// failed returns an outcome carrying err.
func failed(err error) Outcome {
	return Outcome{Err: err}
}

// Adapter executes the trades of one settlement agent against a venue. Every
// venue call runs inside a recoverable step of the caller's transaction so a
// failed trade leaves no partial state behind and is reported as an Outcome
// instead of aborting the caller.
type Adapter struct {
	venue         Venue
	agent         common.Address
	wrappedNative common.Address
}

// NewAdapter creates an adapter that trades from the agent's balance.
func NewAdapter(venue Venue, agent,
	wrappedNative common.Address) *Adapter {

	return &Adapter{
		venue:         venue,
		agent:         agent,
		wrappedNative: wrappedNative,
	}
}

// validate checks the shape of a trade.
func (a *Adapter) validate(trade *Trade) error {
	switch {
	case trade.Amount == nil || trade.Amount.IsZero():
		return fmt.Errorf("%w: zero amount", ErrInvalidTrade)

	case trade.Limit == nil:
		return fmt.Errorf("%w: missing limit", ErrInvalidTrade)

	case trade.NativeOut && trade.AssetOut != a.wrappedNative:
		return fmt.Errorf("%w: native output requires the wrapped "+
			"native asset, got %v", ErrInvalidTrade, trade.AssetOut)
	}

	return nil
}

// assetIn returns the asset actually sold on the venue.
func (a *Adapter) assetIn(trade *Trade) common.Address {
	if trade.NativeIn {
		return a.wrappedNative
	}

	return trade.AssetIn
}

// venueRecipient returns where the venue should deliver the output.
func (a *Adapter) venueRecipient(trade *Trade) common.Address {
	if trade.NativeOut {
		return a.agent
	}

	return trade.Recipient
}

// delta returns how much the balance of holder grew since before. A shrunk
// balance is an error since the venue must never take from the holder.
func delta(tx *ledger.Tx, asset, holder common.Address,
	before *uint256.Int) (*uint256.Int, error) {

	after := tx.BalanceOf(asset, holder)
	if after.Lt(before) {
		return nil, fmt.Errorf("%w: balance of %v in %v dropped from "+
			"%v to %v", ErrDeliveryMismatch, holder, asset, before,
			after)
	}

	return new(uint256.Int).Sub(after, before), nil
}

// deliverNative unwraps the agent's output and sends it to the recipient.
func (a *Adapter) deliverNative(tx *ledger.Tx, to common.Address,
	amount *uint256.Int) error {

	if err := tx.Unwrap(a.agent, amount); err != nil {
		return err
	}

	return tx.Transfer(ledger.NativeAsset, a.agent, to, amount)
}

// TradeExactIn sells trade.Amount for at least trade.Limit.
func (a *Adapter) TradeExactIn(ctx context.Context, tx *ledger.Tx,
	trade *Trade) Outcome {

	if err := a.validate(trade); err != nil {
		return failed(err)
	}

	var amountOut *uint256.Int
	err := tx.Try(func() error {
		if trade.NativeIn {
			err := tx.Wrap(a.agent, trade.Amount)
			if err != nil {
				return err
			}
		}

		// The output is what the recipient's balance gained, not what
		// the venue reports.
		recipient := a.venueRecipient(trade)
		before := tx.BalanceOf(trade.AssetOut, recipient)

		_, err := a.venue.ExactInputSingle(
			ctx, tx, a.agent, &ExactInputParams{
				TokenIn:          a.assetIn(trade),
				TokenOut:         trade.AssetOut,
				Fee:              trade.PoolFee,
				Recipient:        recipient,
				Deadline:         trade.Deadline,
				AmountIn:         trade.Amount,
				AmountOutMinimum: trade.Limit,
			},
		)
		if err != nil {
			return err
		}

		out, err := delta(tx, trade.AssetOut, recipient, before)
		if err != nil {
			return err
		}

		if out.Lt(trade.Limit) {
			return fmt.Errorf("%w: got %v, want at least %v",
				ErrTooLittleReceived, out, trade.Limit)
		}

		if trade.NativeOut {
			err := a.deliverNative(tx, trade.Recipient, out)
			if err != nil {
				return err
			}
		}

		amountOut = out

		return nil
	})
	if err != nil {
		log.Debugf("Exact input trade %v -> %v failed: %v",
			a.assetIn(trade), trade.AssetOut, err)

		return failed(err)
	}

	return Outcome{
		AmountIn:  new(uint256.Int).Set(trade.Amount),
		AmountOut: amountOut,
		Refunded:  new(uint256.Int),
	}
}

// TradeExactOut buys exactly trade.Limit for at most trade.Amount. The unused
// input is returned to trade.Refundee.
func (a *Adapter) TradeExactOut(ctx context.Context, tx *ledger.Tx,
	trade *Trade) Outcome {

	if err := a.validate(trade); err != nil {
		return failed(err)
	}
	if trade.Refundee == (common.Address{}) {
		return failed(fmt.Errorf("%w: exact output trade without "+
			"refundee", ErrInvalidTrade))
	}

	var used, unused *uint256.Int
	err := tx.Try(func() error {
		if trade.NativeIn {
			err := tx.Wrap(a.agent, trade.Amount)
			if err != nil {
				return err
			}
		}

		// Both the consumed input and the delivered output are
		// measured on the ledger.
		assetIn, recipient := a.assetIn(trade), a.venueRecipient(trade)
		inBefore := tx.BalanceOf(assetIn, a.agent)
		outBefore := tx.BalanceOf(trade.AssetOut, recipient)

		_, err := a.venue.ExactOutputSingle(
			ctx, tx, a.agent, &ExactOutputParams{
				TokenIn:         assetIn,
				TokenOut:        trade.AssetOut,
				Fee:             trade.PoolFee,
				Recipient:       recipient,
				Deadline:        trade.Deadline,
				AmountOut:       trade.Limit,
				AmountInMaximum: trade.Amount,
			},
		)
		if err != nil {
			return err
		}

		inAfter := tx.BalanceOf(assetIn, a.agent)
		if inBefore.Lt(inAfter) {
			return fmt.Errorf("%w: input balance grew from %v "+
				"to %v", ErrDeliveryMismatch, inBefore, inAfter)
		}
		amountIn := new(uint256.Int).Sub(inBefore, inAfter)

		out, err := delta(tx, trade.AssetOut, recipient, outBefore)
		if err != nil {
			return err
		}
		if !out.Eq(trade.Limit) {
			return fmt.Errorf("%w: delivered %v, want exactly %v",
				ErrDeliveryMismatch, out, trade.Limit)
		}

		if trade.Amount.Lt(amountIn) {
			return fmt.Errorf("%w: used %v, maximum %v",
				ErrTooMuchRequested, amountIn, trade.Amount)
		}

		if trade.NativeIn {
			err := a.venue.RefundNative(ctx, tx, a.agent)
			if err != nil {
				return err
			}
		}

		rest := new(uint256.Int).Sub(trade.Amount, amountIn)
		if !rest.IsZero() {
			err := a.refund(tx, trade, rest)
			if err != nil {
				return err
			}
		}

		if trade.NativeOut {
			err := a.deliverNative(tx, trade.Recipient, trade.Limit)
			if err != nil {
				return err
			}
		}

		used, unused = amountIn, rest

		return nil
	})
	if err != nil {
		log.Debugf("Exact output trade %v -> %v failed: %v",
			a.assetIn(trade), trade.AssetOut, err)

		return failed(err)
	}

	return Outcome{
		AmountIn:  used,
		AmountOut: new(uint256.Int).Set(trade.Limit),
		Refunded:  unused,
	}
}

// refund returns unused input to the refundee of the leg.
func (a *Adapter) refund(tx *ledger.Tx, trade *Trade,
	amount *uint256.Int) error {

	if trade.NativeIn {
		return a.deliverNative(tx, trade.Refundee, amount)
	}

	return tx.Transfer(trade.AssetIn, a.agent, trade.Refundee, amount)
}
