package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// NativeAsset is the identifier of the chain's native asset.
	NativeAsset = common.Address{}

	// ErrInsufficientBalance is returned when a holder cannot cover a
	// debit.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNoWrappedNative is returned by wrap and unwrap on a ledger that
	// has no wrapped native asset configured.
	ErrNoWrappedNative = errors.New("no wrapped native asset")

	// ErrOverflow is returned when a credit would overflow 256 bits.
	ErrOverflow = errors.New("balance overflow")
)

// Ledger holds the asset balances of a single chain. All mutations happen
// inside a transaction obtained through Atomic, which serializes calls and
// either applies all of their changes or none.
type Ledger struct {
	name          string
	wrappedNative common.Address

	// callMtx serializes transactions and readers outside of them.
	callMtx sync.Mutex

	// mtx guards balances.
	mtx      sync.RWMutex
	balances map[common.Address]map[common.Address]uint256.Int
}

// New creates an empty ledger. If wrappedNative is the zero address the
// ledger does not support wrapping.
func New(name string, wrappedNative common.Address) *Ledger {
	return &Ledger{
		name:          name,
		wrappedNative: wrappedNative,
		balances: make(
			map[common.Address]map[common.Address]uint256.Int,
		),
	}
}

// Name returns the name of the chain the ledger belongs to.
func (l *Ledger) Name() string {
	return l.name
}

// WrappedNative returns the wrapped native asset of the ledger.
func (l *Ledger) WrappedNative() common.Address {
	return l.wrappedNative
}

// BalanceOf returns the committed balance of holder in asset. It waits for a
// running transaction to finish, so it must not be called from inside one.
// Use Tx.BalanceOf there.
func (l *Ledger) BalanceOf(asset, holder common.Address) *uint256.Int {
	l.callMtx.Lock()
	defer l.callMtx.Unlock()

	l.mtx.RLock()
	defer l.mtx.RUnlock()

	return l.balanceOf(asset, holder)
}

// balanceOf returns a copy of the balance. The caller must hold mtx.
func (l *Ledger) balanceOf(asset, holder common.Address) *uint256.Int {
	bal := l.balances[asset][holder]

	return new(uint256.Int).Set(&bal)
}

// set overwrites a balance. The caller must hold the write lock.
func (l *Ledger) set(asset, holder common.Address, amount *uint256.Int) {
	holders, ok := l.balances[asset]
	if !ok {
		holders = make(map[common.Address]uint256.Int)
		l.balances[asset] = holders
	}

	if amount.IsZero() {
		delete(holders, holder)
		return
	}

	holders[holder] = *amount
}

// Mint credits amount of asset to holder in its own transaction.
func (l *Ledger) Mint(asset, holder common.Address,
	amount *uint256.Int) error {

	return l.Atomic(func(tx *Tx) error {
		return tx.Mint(asset, holder, amount)
	})
}

// Transfer moves amount of asset between two holders in its own transaction.
func (l *Ledger) Transfer(asset, from, to common.Address,
	amount *uint256.Int) error {

	return l.Atomic(func(tx *Tx) error {
		return tx.Transfer(asset, from, to, amount)
	})
}

// Atomic runs fn in a new transaction. Transactions are serialized. If fn
// returns an error or panics, all changes made through the transaction are
// reverted. Otherwise the commit hooks registered during the transaction run
// in order once the changes are final.
func (l *Ledger) Atomic(fn func(tx *Tx) error) (err error) {
	l.callMtx.Lock()
	defer l.callMtx.Unlock()

	tx := &Tx{
		ledger: l,
	}

	defer func() {
		if r := recover(); r != nil {
			tx.revertTo(0)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		log.Debugf("[%v] Reverting %d changes: %v", l.name,
			len(tx.journal), err)

		tx.revertTo(0)

		return err
	}

	tx.commit()

	return nil
}

// journalEntry is a single change of a transaction. Either undo or onCommit
// is set.
type journalEntry struct {
	undo     func()
	onCommit func()
}

// Tx is a ledger transaction. It is only valid during the Atomic call that
// created it.
type Tx struct {
	ledger  *Ledger
	journal []journalEntry
}

// Ledger returns the ledger the transaction runs on.
func (tx *Tx) Ledger() *Ledger {
	return tx.ledger
}

// Snapshot returns an identifier of the current transaction state.
func (tx *Tx) Snapshot() int {
	return len(tx.journal)
}

// RevertToSnapshot undoes all changes made after the snapshot was taken.
func (tx *Tx) RevertToSnapshot(id int) {
	tx.revertTo(id)
}

// Try runs fn as a nested recoverable step. If fn fails, only the changes fn
// made are reverted and the error is returned to the caller, which may go on
// using the transaction.
func (tx *Tx) Try(fn func() error) (err error) {
	snapshot := tx.Snapshot()

	defer func() {
		if r := recover(); r != nil {
			tx.revertTo(snapshot)
			err = fmt.Errorf("recovered: %v", r)
		}
	}()

	if err := fn(); err != nil {
		tx.revertTo(snapshot)
		return err
	}

	return nil
}

// AddUndo registers a function that reverts an external change made as part
// of the transaction.
func (tx *Tx) AddUndo(undo func()) {
	tx.journal = append(tx.journal, journalEntry{undo: undo})
}

// OnCommit registers a function that runs once the transaction committed.
// Hooks registered inside a reverted Try are dropped.
func (tx *Tx) OnCommit(fn func()) {
	tx.journal = append(tx.journal, journalEntry{onCommit: fn})
}

// BalanceOf returns the balance of holder in asset as seen by the
// transaction.
func (tx *Tx) BalanceOf(asset, holder common.Address) *uint256.Int {
	l := tx.ledger

	l.mtx.RLock()
	defer l.mtx.RUnlock()

	return l.balanceOf(asset, holder)
}

// Mint credits amount of asset to holder.
func (tx *Tx) Mint(asset, holder common.Address, amount *uint256.Int) error {
	return tx.credit(asset, holder, amount)
}

// Burn debits amount of asset from holder.
func (tx *Tx) Burn(asset, holder common.Address, amount *uint256.Int) error {
	return tx.debit(asset, holder, amount)
}

// Transfer moves amount of asset from one holder to another.
func (tx *Tx) Transfer(asset, from, to common.Address,
	amount *uint256.Int) error {

	if err := tx.debit(asset, from, amount); err != nil {
		return err
	}

	return tx.credit(asset, to, amount)
}

// Wrap converts amount of the holder's native asset into the wrapped native
// asset. The wrapped native contract holds the native backing.
func (tx *Tx) Wrap(holder common.Address, amount *uint256.Int) error {
	wrapped := tx.ledger.wrappedNative
	if wrapped == (common.Address{}) {
		return ErrNoWrappedNative
	}

	err := tx.Transfer(NativeAsset, holder, wrapped, amount)
	if err != nil {
		return err
	}

	return tx.credit(wrapped, holder, amount)
}

// Unwrap converts amount of the holder's wrapped native asset back into the
// native asset.
func (tx *Tx) Unwrap(holder common.Address, amount *uint256.Int) error {
	wrapped := tx.ledger.wrappedNative
	if wrapped == (common.Address{}) {
		return ErrNoWrappedNative
	}

	if err := tx.debit(wrapped, holder, amount); err != nil {
		return err
	}

	return tx.Transfer(NativeAsset, wrapped, holder, amount)
}

func (tx *Tx) credit(asset, holder common.Address, amount *uint256.Int) error {
	l := tx.ledger

	l.mtx.Lock()
	defer l.mtx.Unlock()

	prev := l.balanceOf(asset, holder)
	next, overflow := new(uint256.Int).AddOverflow(prev, amount)
	if overflow {
		return fmt.Errorf("%w: %v of %v", ErrOverflow, holder, asset)
	}

	tx.setJournaled(asset, holder, prev, next)

	return nil
}

func (tx *Tx) debit(asset, holder common.Address, amount *uint256.Int) error {
	l := tx.ledger

	l.mtx.Lock()
	defer l.mtx.Unlock()

	prev := l.balanceOf(asset, holder)
	if prev.Lt(amount) {
		return fmt.Errorf("%w: %v holds %v of %v, needs %v",
			ErrInsufficientBalance, holder, prev, asset, amount)
	}

	tx.setJournaled(asset, holder, prev, new(uint256.Int).Sub(prev, amount))

	return nil
}

// setJournaled sets a balance and records how to undo it. The caller must hold
// the write lock.
func (tx *Tx) setJournaled(asset, holder common.Address, prev,
	next *uint256.Int) {

	l := tx.ledger
	l.set(asset, holder, next)

	tx.journal = append(tx.journal, journalEntry{
		undo: func() {
			l.mtx.Lock()
			defer l.mtx.Unlock()

			l.set(asset, holder, prev)
		},
	})
}

// revertTo undoes all journal entries from the end down to the given index.
func (tx *Tx) revertTo(id int) {
	for i := len(tx.journal) - 1; i >= id; i-- {
		if undo := tx.journal[i].undo; undo != nil {
			undo()
		}
	}

	tx.journal = tx.journal[:id]
}

// commit runs the commit hooks.
func (tx *Tx) commit() {
	for _, entry := range tx.journal {
		if entry.onCommit != nil {
			entry.onCommit()
		}
	}

	tx.journal = nil
}
