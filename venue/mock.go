package venue

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/ledger"
	"github.com/holiman/uint256"
)

// MockVenue is a scripted venue. It burns the consumed input from the payer
// and mints the output to the recipient, so it needs no liquidity.
type MockVenue struct {
	// ExactIn returns the output of an exact input trade.
	ExactIn func(*ExactInputParams) (*uint256.Int, error)

	// ExactOut returns the input used by an exact output trade.
	ExactOut func(*ExactOutputParams) (*uint256.Int, error)

	mtx           sync.Mutex
	exactInCalls  []ExactInputParams
	exactOutCalls []ExactOutputParams
	refunds       int
}

// A compile time assertion that MockVenue implements Venue.
var _ Venue = (*MockVenue)(nil)

// NewMockVenue returns a venue that fills every trade at the limit price:
// exact input trades return the minimum output and exact output trades use
// the maximum input.
func NewMockVenue() *MockVenue {
	return &MockVenue{
		ExactIn: func(p *ExactInputParams) (*uint256.Int, error) {
			return new(uint256.Int).Set(p.AmountOutMinimum), nil
		},
		ExactOut: func(p *ExactOutputParams) (*uint256.Int, error) {
			return new(uint256.Int).Set(p.AmountInMaximum), nil
		},
	}
}

// ExactInputSingle implements Venue.
func (m *MockVenue) ExactInputSingle(_ context.Context, tx *ledger.Tx,
	payer common.Address, params *ExactInputParams) (*uint256.Int, error) {

	m.mtx.Lock()
	m.exactInCalls = append(m.exactInCalls, *params)
	m.mtx.Unlock()

	out, err := m.ExactIn(params)
	if err != nil {
		return nil, err
	}

	err = m.fill(
		tx, payer, params.Recipient, params.TokenIn, params.TokenOut,
		params.AmountIn, out,
	)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ExactOutputSingle implements Venue.
func (m *MockVenue) ExactOutputSingle(_ context.Context, tx *ledger.Tx,
	payer common.Address, params *ExactOutputParams) (*uint256.Int, error) {

	m.mtx.Lock()
	m.exactOutCalls = append(m.exactOutCalls, *params)
	m.mtx.Unlock()

	in, err := m.ExactOut(params)
	if err != nil {
		return nil, err
	}

	err = m.fill(
		tx, payer, params.Recipient, params.TokenIn, params.TokenOut,
		in, params.AmountOut,
	)
	if err != nil {
		return nil, err
	}

	return in, nil
}

// RefundNative implements Venue. The mock never holds native funds.
func (m *MockVenue) RefundNative(context.Context, *ledger.Tx,
	common.Address) error {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.refunds++

	return nil
}

func (m *MockVenue) fill(tx *ledger.Tx, payer, recipient, tokenIn,
	tokenOut common.Address, in, out *uint256.Int) error {

	if err := tx.Burn(tokenIn, payer, in); err != nil {
		return err
	}

	return tx.Mint(tokenOut, recipient, out)
}

// ExactInCalls returns the exact input trades seen so far.
func (m *MockVenue) ExactInCalls() []ExactInputParams {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return append([]ExactInputParams(nil), m.exactInCalls...)
}

// ExactOutCalls returns the exact output trades seen so far.
func (m *MockVenue) ExactOutCalls() []ExactOutputParams {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return append([]ExactOutputParams(nil), m.exactOutCalls...)
}

// Refunds returns the number of native refund calls.
func (m *MockVenue) Refunds() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.refunds
}
