package settledb

import (
	"context"
	"errors"

	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/transport"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a record for the same message is
	// stored twice.
	ErrDuplicate = errors.New("record already exists")
)

// Store is the database interface of the settlement daemon. It houses the
// transfers sent from this chain and the settlements of messages received
// by it.
type Store interface {
	// CreateTransfer adds a committed outbound transfer.
	CreateTransfer(ctx context.Context, transfer *settlement.Transfer) error

	// FetchTransfer returns the transfer carried by the given message.
	FetchTransfer(ctx context.Context,
		id transport.MessageID) (*settlement.Transfer, error)

	// FetchTransfers returns all transfers in insertion order.
	FetchTransfers(ctx context.Context) ([]*settlement.Transfer, error)

	// CreateResult adds the result of a settled message along with the
	// states it went through.
	CreateResult(ctx context.Context, result *settlement.Result) error

	// FetchResult returns the settlement of the given message.
	FetchResult(ctx context.Context,
		id transport.MessageID) (*settlement.Result, error)

	// FetchResults returns all settlements in insertion order.
	FetchResults(ctx context.Context) ([]*settlement.Result, error)

	// Close closes the underlying database.
	Close() error
}
