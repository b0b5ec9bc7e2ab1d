package venue

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/ledger"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/clock"
)

// FeeDenominator is the unit of pool fee tiers, hundredths of a basis point.
const FeeDenominator = 1_000_000

var feeDenominator = uint256.NewInt(FeeDenominator)

// PoolKey identifies a pool. TokenA sorts before TokenB.
type PoolKey struct {
	TokenA common.Address
	TokenB common.Address
	Fee    uint32
}

// NewPoolKey returns the key of the pool for the unordered pair.
func NewPoolKey(tokenX, tokenY common.Address, fee uint32) PoolKey {
	if bytes.Compare(tokenX[:], tokenY[:]) > 0 {
		tokenX, tokenY = tokenY, tokenX
	}

	return PoolKey{
		TokenA: tokenX,
		TokenB: tokenY,
		Fee:    fee,
	}
}

// String returns a short description of the pool.
func (k PoolKey) String() string {
	return fmt.Sprintf("%v/%v@%d", k.TokenA, k.TokenB, k.Fee)
}

// PoolVenue is a constant product venue. The reserves of all pools are held by
// the venue's address on the ledger.
type PoolVenue struct {
	addr  common.Address
	clock clock.Clock

	mtx      sync.Mutex
	reserves map[PoolKey]map[common.Address]*uint256.Int
}

// A compile time assertion that PoolVenue implements Venue.
var _ Venue = (*PoolVenue)(nil)

// NewPoolVenue creates an empty venue at the given address.
func NewPoolVenue(addr common.Address, clock clock.Clock) *PoolVenue {
	return &PoolVenue{
		addr:     addr,
		clock:    clock,
		reserves: make(map[PoolKey]map[common.Address]*uint256.Int),
	}
}

// Address returns the address of the venue on the ledger.
func (v *PoolVenue) Address() common.Address {
	return v.addr
}

// AddLiquidity moves both amounts from the provider into the pool, creating
// the pool if needed.
func (v *PoolVenue) AddLiquidity(tx *ledger.Tx, provider common.Address,
	key PoolKey, amountA, amountB *uint256.Int) error {

	if key.Fee >= FeeDenominator {
		return fmt.Errorf("%w: fee tier %d", ErrInvalidTrade, key.Fee)
	}

	err := tx.Transfer(key.TokenA, provider, v.addr, amountA)
	if err != nil {
		return err
	}

	err = tx.Transfer(key.TokenB, provider, v.addr, amountB)
	if err != nil {
		return err
	}

	v.mtx.Lock()
	defer v.mtx.Unlock()

	pool, ok := v.reserves[key]
	if !ok {
		pool = map[common.Address]*uint256.Int{
			key.TokenA: new(uint256.Int),
			key.TokenB: new(uint256.Int),
		}
		v.reserves[key] = pool

		tx.AddUndo(func() {
			v.mtx.Lock()
			defer v.mtx.Unlock()

			delete(v.reserves, key)
		})
	}

	v.adjust(tx, key, key.TokenA, amountA, true)
	v.adjust(tx, key, key.TokenB, amountB, true)

	return nil
}

// Reserves returns the reserves of the pool for the given pair, in the order
// of the arguments.
func (v *PoolVenue) Reserves(tokenX, tokenY common.Address,
	fee uint32) (*uint256.Int, *uint256.Int, bool) {

	v.mtx.Lock()
	defer v.mtx.Unlock()

	pool, ok := v.reserves[NewPoolKey(tokenX, tokenY, fee)]
	if !ok {
		return nil, nil, false
	}

	return new(uint256.Int).Set(pool[tokenX]),
		new(uint256.Int).Set(pool[tokenY]), true
}

// adjust changes a reserve and journals the change. The caller must hold
// mtx.
func (v *PoolVenue) adjust(tx *ledger.Tx, key PoolKey, token common.Address,
	delta *uint256.Int, add bool) {

	pool := v.reserves[key]
	prev := new(uint256.Int).Set(pool[token])

	if add {
		pool[token].Add(pool[token], delta)
	} else {
		pool[token].Sub(pool[token], delta)
	}

	tx.AddUndo(func() {
		v.mtx.Lock()
		defer v.mtx.Unlock()

		if pool, ok := v.reserves[key]; ok {
			pool[token].Set(prev)
		}
	})
}

// checkDeadline fails if the deadline has passed.
func (v *PoolVenue) checkDeadline(deadline uint64) error {
	now := v.clock.Now().Unix()
	if now < 0 || uint64(now) > deadline {
		return fmt.Errorf("%w: deadline %d, now %d",
			ErrDeadlineExpired, deadline, now)
	}

	return nil
}

// pool returns the reserves of the pair in trade direction. The caller must
// hold mtx.
func (v *PoolVenue) pool(tokenIn, tokenOut common.Address,
	fee uint32) (PoolKey, *uint256.Int, *uint256.Int, error) {

	key := NewPoolKey(tokenIn, tokenOut, fee)
	pool, ok := v.reserves[key]
	if !ok || tokenIn == tokenOut {
		return key, nil, nil, fmt.Errorf("%w: %v", ErrPoolNotFound, key)
	}

	return key, pool[tokenIn], pool[tokenOut], nil
}

// QuoteExactIn returns the output of selling amountIn against the reserves.
func QuoteExactIn(amountIn, reserveIn, reserveOut *uint256.Int,
	fee uint32) (*uint256.Int, error) {

	if fee >= FeeDenominator {
		return nil, fmt.Errorf("%w: fee tier %d", ErrInvalidTrade, fee)
	}

	feeFactor := uint256.NewInt(uint64(FeeDenominator - fee))

	inWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, feeFactor)
	if overflow {
		return nil, fmt.Errorf("%w: input overflow", ErrInvalidTrade)
	}

	scaledReserve, overflow := new(uint256.Int).MulOverflow(
		reserveIn, feeDenominator,
	)
	if overflow {
		return nil, fmt.Errorf("%w: reserve overflow", ErrInvalidTrade)
	}

	denominator, overflow := new(uint256.Int).AddOverflow(
		scaledReserve, inWithFee,
	)
	if overflow || denominator.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	out, _ := new(uint256.Int).MulDivOverflow(
		inWithFee, reserveOut, denominator,
	)

	return out, nil
}

// QuoteExactOut returns the input needed to buy amountOut from the reserves,
// rounded up.
func QuoteExactOut(amountOut, reserveIn, reserveOut *uint256.Int,
	fee uint32) (*uint256.Int, error) {

	if fee >= FeeDenominator {
		return nil, fmt.Errorf("%w: fee tier %d", ErrInvalidTrade, fee)
	}
	if !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: want %v, pool holds %v",
			ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	numerator, overflow := new(uint256.Int).MulOverflow(
		reserveIn, amountOut,
	)
	if !overflow {
		numerator, overflow = numerator.MulOverflow(
			numerator, feeDenominator,
		)
	}
	if overflow {
		return nil, fmt.Errorf("%w: output overflow", ErrInvalidTrade)
	}

	feeFactor := uint256.NewInt(uint64(FeeDenominator - fee))
	denominator := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, feeFactor)

	var rem uint256.Int
	in, _ := new(uint256.Int).DivMod(numerator, denominator, &rem)
	if !rem.IsZero() {
		in.AddUint64(in, 1)
	}

	return in, nil
}

// ExactInputSingle implements Venue.
func (v *PoolVenue) ExactInputSingle(_ context.Context, tx *ledger.Tx,
	payer common.Address, params *ExactInputParams) (*uint256.Int, error) {

	if err := v.checkDeadline(params.Deadline); err != nil {
		return nil, err
	}
	if params.AmountIn == nil || params.AmountIn.IsZero() {
		return nil, fmt.Errorf("%w: zero input", ErrInvalidTrade)
	}

	v.mtx.Lock()
	key, reserveIn, reserveOut, err := v.pool(
		params.TokenIn, params.TokenOut, params.Fee,
	)
	if err != nil {
		v.mtx.Unlock()
		return nil, err
	}

	out, err := QuoteExactIn(
		params.AmountIn, reserveIn, reserveOut, params.Fee,
	)
	v.mtx.Unlock()
	if err != nil {
		return nil, err
	}

	if out.IsZero() || params.AmountOutMinimum != nil &&
		out.Lt(params.AmountOutMinimum) {

		return nil, fmt.Errorf("%w: got %v, minimum %v",
			ErrTooLittleReceived, out, params.AmountOutMinimum)
	}

	err = v.settle(
		tx, key, payer, params.Recipient, params.TokenIn,
		params.TokenOut, params.AmountIn, out,
	)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ExactOutputSingle implements Venue.
func (v *PoolVenue) ExactOutputSingle(_ context.Context, tx *ledger.Tx,
	payer common.Address, params *ExactOutputParams) (*uint256.Int, error) {

	if err := v.checkDeadline(params.Deadline); err != nil {
		return nil, err
	}
	if params.AmountOut == nil || params.AmountOut.IsZero() {
		return nil, fmt.Errorf("%w: zero output", ErrInvalidTrade)
	}

	v.mtx.Lock()
	key, reserveIn, reserveOut, err := v.pool(
		params.TokenIn, params.TokenOut, params.Fee,
	)
	if err != nil {
		v.mtx.Unlock()
		return nil, err
	}

	in, err := QuoteExactOut(
		params.AmountOut, reserveIn, reserveOut, params.Fee,
	)
	v.mtx.Unlock()
	if err != nil {
		return nil, err
	}

	if params.AmountInMaximum != nil && params.AmountInMaximum.Lt(in) {
		return nil, fmt.Errorf("%w: need %v, maximum %v",
			ErrTooMuchRequested, in, params.AmountInMaximum)
	}

	err = v.settle(
		tx, key, payer, params.Recipient, params.TokenIn,
		params.TokenOut, in, params.AmountOut,
	)
	if err != nil {
		return nil, err
	}

	return in, nil
}

// settle moves the funds of a trade and updates the reserves.
func (v *PoolVenue) settle(tx *ledger.Tx, key PoolKey, payer,
	recipient, tokenIn, tokenOut common.Address, in,
	out *uint256.Int) error {

	if err := tx.Transfer(tokenIn, payer, v.addr, in); err != nil {
		return err
	}
	if err := tx.Transfer(tokenOut, v.addr, recipient, out); err != nil {
		return err
	}

	v.mtx.Lock()
	defer v.mtx.Unlock()

	v.adjust(tx, key, tokenIn, in, true)
	v.adjust(tx, key, tokenOut, out, false)

	log.Tracef("Pool %v: sold %v of %v for %v of %v", key, in, tokenIn,
		out, tokenOut)

	return nil
}

// RefundNative implements Venue. It sends the venue's whole native balance to
// the given address, as pools only ever hold wrapped native.
func (v *PoolVenue) RefundNative(_ context.Context, tx *ledger.Tx,
	to common.Address) error {

	bal := tx.BalanceOf(ledger.NativeAsset, v.addr)
	if bal.IsZero() {
		return nil
	}

	return tx.Transfer(ledger.NativeAsset, v.addr, to, bal)
}
