package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	token   = common.HexToAddress("0x70")
	wrapped = common.HexToAddress("0x77")
	alice   = common.HexToAddress("0xa1")
	bob     = common.HexToAddress("0xb0")

	errTest = errors.New("test error")
)

func amt(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// TestTransfer exercises plain transfers and the insufficient balance path.
func TestTransfer(t *testing.T) {
	t.Parallel()

	l := New("test", wrapped)
	require.NoError(t, l.Mint(token, alice, amt(100)))

	require.NoError(t, l.Transfer(token, alice, bob, amt(40)))
	require.Equal(t, amt(60), l.BalanceOf(token, alice))
	require.Equal(t, amt(40), l.BalanceOf(token, bob))

	err := l.Transfer(token, bob, alice, amt(41))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, amt(40), l.BalanceOf(token, bob))
}

// TestAtomicRevert asserts that a failing transaction leaves no trace.
func TestAtomicRevert(t *testing.T) {
	t.Parallel()

	l := New("test", wrapped)
	require.NoError(t, l.Mint(token, alice, amt(100)))

	var (
		committed bool
		undone    bool
	)
	err := l.Atomic(func(tx *Tx) error {
		require.NoError(t, tx.Transfer(token, alice, bob, amt(70)))
		require.NoError(t, tx.Mint(token, bob, amt(5)))

		tx.AddUndo(func() { undone = true })
		tx.OnCommit(func() { committed = true })

		return errTest
	})
	require.ErrorIs(t, err, errTest)

	require.Equal(t, amt(100), l.BalanceOf(token, alice))
	require.True(t, l.BalanceOf(token, bob).IsZero())
	require.True(t, undone)
	require.False(t, committed)
}

// TestBalanceOfDuringTransaction asserts that readers outside of a
// transaction only see committed balances.
func TestBalanceOfDuringTransaction(t *testing.T) {
	t.Parallel()

	l := New("test", wrapped)
	require.NoError(t, l.Mint(token, alice, amt(100)))

	balances := make(chan *uint256.Int, 1)
	err := l.Atomic(func(tx *Tx) error {
		require.NoError(t, tx.Transfer(token, alice, bob, amt(70)))
		require.Equal(t, amt(30), tx.BalanceOf(token, alice))

		go func() {
			balances <- l.BalanceOf(token, alice)
		}()

		select {
		case bal := <-balances:
			t.Fatalf("read %v while the transaction ran", bal)

		case <-time.After(50 * time.Millisecond):
		}

		return errTest
	})
	require.ErrorIs(t, err, errTest)

	select {
	case bal := <-balances:
		require.Equal(t, amt(100), bal)

	case <-time.After(time.Second):
		t.Fatalf("balance read did not finish")
	}
}

// TestAtomicPanic asserts that a panicking transaction is reverted before the
// panic is propagated.
func TestAtomicPanic(t *testing.T) {
	t.Parallel()

	l := New("test", wrapped)
	require.NoError(t, l.Mint(token, alice, amt(10)))

	require.Panics(t, func() {
		_ = l.Atomic(func(tx *Tx) error {
			require.NoError(t, tx.Burn(token, alice, amt(10)))
			panic("boom")
		})
	})

	require.Equal(t, amt(10), l.BalanceOf(token, alice))
}

// TestTry asserts that a failed nested step only reverts its own changes.
func TestTry(t *testing.T) {
	t.Parallel()

	l := New("test", wrapped)
	require.NoError(t, l.Mint(token, alice, amt(100)))

	committed := 0
	err := l.Atomic(func(tx *Tx) error {
		require.NoError(t, tx.Transfer(token, alice, bob, amt(10)))
		tx.OnCommit(func() { committed++ })

		err := tx.Try(func() error {
			err := tx.Transfer(token, alice, bob, amt(20))
			require.NoError(t, err)
			tx.OnCommit(func() { committed += 10 })

			return errTest
		})
		require.ErrorIs(t, err, errTest)

		err = tx.Try(func() error {
			panic("venue exploded")
		})
		require.Error(t, err)

		return nil
	})
	require.NoError(t, err)

	require.Equal(t, amt(90), l.BalanceOf(token, alice))
	require.Equal(t, amt(10), l.BalanceOf(token, bob))
	require.Equal(t, 1, committed)
}

// TestWrapUnwrap checks the conversion between native and wrapped native.
func TestWrapUnwrap(t *testing.T) {
	t.Parallel()

	l := New("test", wrapped)
	require.NoError(t, l.Mint(NativeAsset, alice, amt(50)))

	err := l.Atomic(func(tx *Tx) error {
		return tx.Wrap(alice, amt(30))
	})
	require.NoError(t, err)

	require.Equal(t, amt(20), l.BalanceOf(NativeAsset, alice))
	require.Equal(t, amt(30), l.BalanceOf(wrapped, alice))
	require.Equal(t, amt(30), l.BalanceOf(NativeAsset, wrapped))

	err = l.Atomic(func(tx *Tx) error {
		return tx.Unwrap(alice, amt(31))
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	err = l.Atomic(func(tx *Tx) error {
		return tx.Unwrap(alice, amt(30))
	})
	require.NoError(t, err)
	require.Equal(t, amt(50), l.BalanceOf(NativeAsset, alice))
	require.True(t, l.BalanceOf(NativeAsset, wrapped).IsZero())

	noWrap := New("plain", common.Address{})
	err = noWrap.Atomic(func(tx *Tx) error {
		return tx.Wrap(alice, amt(1))
	})
	require.ErrorIs(t, err, ErrNoWrappedNative)
}

// TestOverflow makes sure credits never wrap around.
func TestOverflow(t *testing.T) {
	t.Parallel()

	var maxBalance uint256.Int
	maxBalance.SetAllOne()

	l := New("test", wrapped)
	require.NoError(t, l.Mint(token, alice, &maxBalance))

	err := l.Mint(token, alice, amt(1))
	require.ErrorIs(t, err, ErrOverflow)
	require.Equal(t, &maxBalance, l.BalanceOf(token, alice))
}
