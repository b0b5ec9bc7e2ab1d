package settledb

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/test"
	"github.com/highwayswap/highway/transport"
	"github.com/stretchr/testify/require"
)

// mockBuffer is the number of records the mock buffers before an assertion
// has to consume them.
const mockBuffer = 10

// StoreMock implements an in-memory settlement store.
type StoreMock struct {
	sync.RWMutex

	Transfers     map[transport.MessageID]*settlement.Transfer
	transferOrder []transport.MessageID
	transferChan  chan *settlement.Transfer

	Results     map[transport.MessageID]*settlement.Result
	resultOrder []transport.MessageID
	resultChan  chan *settlement.Result

	t *testing.T
}

// A compile time assertion to ensure StoreMock satisfies Store.
var _ Store = (*StoreMock)(nil)

// NewStoreMock instantiates a new mock store.
func NewStoreMock(t *testing.T) *StoreMock {
	return &StoreMock{
		Transfers: make(
			map[transport.MessageID]*settlement.Transfer,
		),
		transferChan: make(chan *settlement.Transfer, mockBuffer),
		Results:      make(map[transport.MessageID]*settlement.Result),
		resultChan:   make(chan *settlement.Result, mockBuffer),
		t:            t,
	}
}

// CreateTransfer adds a committed outbound transfer.
//
// NOTE: Part of the Store interface.
func (s *StoreMock) CreateTransfer(_ context.Context,
	transfer *settlement.Transfer) error {

	s.Lock()
	defer s.Unlock()

	if _, ok := s.Transfers[transfer.ID]; ok {
		return fmt.Errorf("%w: transfer %v", ErrDuplicate, transfer.ID)
	}

	s.Transfers[transfer.ID] = transfer
	s.transferOrder = append(s.transferOrder, transfer.ID)
	s.transferChan <- transfer

	return nil
}

// FetchTransfer returns the transfer carried by the given message.
//
// NOTE: Part of the Store interface.
func (s *StoreMock) FetchTransfer(_ context.Context,
	id transport.MessageID) (*settlement.Transfer, error) {

	s.RLock()
	defer s.RUnlock()

	transfer, ok := s.Transfers[id]
	if !ok {
		return nil, ErrNotFound
	}

	return transfer, nil
}

// FetchTransfers returns all transfers in insertion order.
//
// NOTE: Part of the Store interface.
func (s *StoreMock) FetchTransfers(
	_ context.Context) ([]*settlement.Transfer, error) {

	s.RLock()
	defer s.RUnlock()

	transfers := make([]*settlement.Transfer, 0, len(s.transferOrder))
	for _, id := range s.transferOrder {
		transfers = append(transfers, s.Transfers[id])
	}

	return transfers, nil
}

// CreateResult adds the result of a settled message.
//
// NOTE: Part of the Store interface.
func (s *StoreMock) CreateResult(_ context.Context,
	result *settlement.Result) error {

	s.Lock()
	defer s.Unlock()

	if _, ok := s.Results[result.MessageID]; ok {
		return fmt.Errorf("%w: settlement %v", ErrDuplicate,
			result.MessageID)
	}

	s.Results[result.MessageID] = result
	s.resultOrder = append(s.resultOrder, result.MessageID)
	s.resultChan <- result

	return nil
}

// FetchResult returns the settlement of the given message.
//
// NOTE: Part of the Store interface.
func (s *StoreMock) FetchResult(_ context.Context,
	id transport.MessageID) (*settlement.Result, error) {

	s.RLock()
	defer s.RUnlock()

	result, ok := s.Results[id]
	if !ok {
		return nil, ErrNotFound
	}

	return result, nil
}

// FetchResults returns all settlements in insertion order.
//
// NOTE: Part of the Store interface.
func (s *StoreMock) FetchResults(_ context.Context) ([]*settlement.Result,
	error) {

	s.RLock()
	defer s.RUnlock()

	results := make([]*settlement.Result, 0, len(s.resultOrder))
	for _, id := range s.resultOrder {
		results = append(results, s.Results[id])
	}

	return results, nil
}

// Close is a no-op.
//
// NOTE: Part of the Store interface.
func (s *StoreMock) Close() error {
	return nil
}

// AssertTransferStored asserts that a transfer is stored and returns it.
func (s *StoreMock) AssertTransferStored() *settlement.Transfer {
	s.t.Helper()

	transfer, err := test.Receive[*settlement.Transfer](
		s.transferChan,
	)
	require.NoError(s.t, err, "expected transfer to be stored")

	return transfer
}

// AssertResultStored asserts that a settlement with the given outcome is
// stored and returns it.
func (s *StoreMock) AssertResultStored(
	outcome settlement.Outcome) *settlement.Result {

	s.t.Helper()

	result, err := test.Receive[*settlement.Result](s.resultChan)
	require.NoError(s.t, err, "expected settlement to be stored")
	require.Equal(s.t, outcome, result.Outcome)

	return result
}
