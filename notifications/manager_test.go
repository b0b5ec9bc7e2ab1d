package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/test"
	"github.com/highwayswap/highway/transport"
	"github.com/stretchr/testify/require"
)

var (
	testMessageID  = transport.MessageID{0x01, 0x02}
	testMessageID2 = transport.MessageID{0x01, 0x03}
)

func TestManager_ResultNotification(t *testing.T) {
	defer test.Guard(t)()

	mgr := NewManager(&Config{})

	// Subscribe to settlement notifications.
	subCtx, subCancel := context.WithCancel(context.Background())
	subChan := mgr.SubscribeResults(subCtx)

	// Run the manager.
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- mgr.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		mgr.Lock()
		defer mgr.Unlock()
		return len(mgr.subscribers[NotificationTypeResult]) > 0
	}, time.Second*5, 10*time.Millisecond)

	mgr.NotifyResult(&settlement.Result{
		MessageID: testMessageID,
		Outcome:   settlement.OutcomeDelivered,
	})

	received, err := test.Receive[*settlement.Result](subChan)
	require.NoError(t, err)
	require.Equal(t, testMessageID, received.MessageID)

	// Cancel the subscription.
	subCancel()

	// Notify again, the canceled subscriber must not block the manager.
	mgr.NotifyResult(&settlement.Result{MessageID: testMessageID2})

	// Check that the subChan is eventually closed.
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-subChan:
			return !ok
		default:
			return false
		}
	}, time.Second*5, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-runErr)

	// Once stopped, notifying no longer blocks.
	for i := 0; i < DefaultQueueSize+1; i++ {
		mgr.NotifyTransfer(&settlement.Transfer{})
	}
}

func TestManager_TransferFanOut(t *testing.T) {
	defer test.Guard(t)()

	mgr := NewManager(&Config{QueueSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := mgr.SubscribeTransfers(ctx)
	second := mgr.SubscribeTransfers(ctx)
	results := mgr.SubscribeResults(ctx)

	go func() {
		_ = mgr.Run(ctx)
	}()

	transfer := &settlement.Transfer{ID: testMessageID}
	mgr.NotifyTransfer(transfer)

	for _, ch := range []<-chan *settlement.Transfer{first, second} {
		received, err := test.Receive(ch)
		require.NoError(t, err)
		require.Equal(t, transfer, received)
	}

	select {
	case <-results:
		t.Fatal("transfer delivered to settlement subscriber")
	default:
	}
}
