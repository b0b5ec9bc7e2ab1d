package settledb

import (
	"context"
	"time"

	"github.com/highwayswap/highway/settlement"
)

// defaultRecordTimeout bounds how long persisting a single record may take.
const defaultRecordTimeout = 30 * time.Second

// Recorder is a settlement.Notifier that persists every committed transfer
// and settlement before passing it on.
type Recorder struct {
	store Store
	next  settlement.Notifier
}

// A compile time assertion to ensure Recorder satisfies settlement.Notifier.
var _ settlement.Notifier = (*Recorder)(nil)

// NewRecorder returns a recorder writing to store. The next notifier is
// optional.
func NewRecorder(store Store, next settlement.Notifier) *Recorder {
	return &Recorder{
		store: store,
		next:  next,
	}
}

// NotifyTransfer stores the transfer.
func (r *Recorder) NotifyTransfer(transfer *settlement.Transfer) {
	ctx, cancel := context.WithTimeout(
		context.Background(), defaultRecordTimeout,
	)
	defer cancel()

	err := r.store.CreateTransfer(ctx, transfer)
	if err != nil {
		log.Errorf("Unable to store transfer %v: %v", transfer.ID, err)
	} else {
		log.Debugf("Stored transfer %v", transfer.ID)
	}

	if r.next != nil {
		r.next.NotifyTransfer(transfer)
	}
}

// NotifyResult stores the settlement.
func (r *Recorder) NotifyResult(result *settlement.Result) {
	ctx, cancel := context.WithTimeout(
		context.Background(), defaultRecordTimeout,
	)
	defer cancel()

	err := r.store.CreateResult(ctx, result)
	if err != nil {
		log.Errorf("Unable to store settlement %v: %v",
			result.MessageID, err)
	} else {
		log.Debugf("Stored settlement %v: %v", result.MessageID,
			result.Outcome)
	}

	if r.next != nil {
		r.next.NotifyResult(result)
	}
}
