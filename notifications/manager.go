package notifications

import (
	"context"
	"sync"

	"github.com/highwayswap/highway/settlement"
)

// NotificationType is the type of notification that the manager can handle.
type NotificationType int

const (
	// NotificationTypeUnknown is the default notification type.
	NotificationTypeUnknown NotificationType = iota

	// NotificationTypeTransfer is the notification type for committed
	// outbound transfers.
	NotificationTypeTransfer

	// NotificationTypeResult is the notification type for settlements of
	// inbound messages.
	NotificationTypeResult
)

// DefaultQueueSize is the number of notifications buffered before the
// notifying agent blocks.
const DefaultQueueSize = 64

// Config contains all the services that the notification manager needs to
// operate.
type Config struct {
	// QueueSize is the number of buffered notifications. DefaultQueueSize
	// is used if it is zero.
	QueueSize int
}

// Manager fans out the transfers and settlements committed by the agents to
// everyone subscribed to them.
type Manager struct {
	cfg *Config

	queue chan interface{}
	quit  chan struct{}

	subscribers map[NotificationType][]subscriber
	sync.Mutex
}

// A compile time assertion to ensure Manager satisfies settlement.Notifier.
var _ settlement.Notifier = (*Manager)(nil)

// NewManager creates a new notification manager.
func NewManager(cfg *Config) *Manager {
	size := cfg.QueueSize
	if size == 0 {
		size = DefaultQueueSize
	}

	return &Manager{
		cfg:         cfg,
		queue:       make(chan interface{}, size),
		quit:        make(chan struct{}),
		subscribers: make(map[NotificationType][]subscriber),
	}
}

type subscriber struct {
	subCtx   context.Context
	recvChan interface{}
}

// SubscribeTransfers subscribes to the transfer notifications.
func (m *Manager) SubscribeTransfers(
	ctx context.Context) <-chan *settlement.Transfer {

	notifChan := make(chan *settlement.Transfer, 1)
	m.subscribe(ctx, NotificationTypeTransfer, notifChan, func() {
		close(notifChan)
	})

	return notifChan
}

// SubscribeResults subscribes to the settlement notifications.
func (m *Manager) SubscribeResults(
	ctx context.Context) <-chan *settlement.Result {

	notifChan := make(chan *settlement.Result, 1)
	m.subscribe(ctx, NotificationTypeResult, notifChan, func() {
		close(notifChan)
	})

	return notifChan
}

func (m *Manager) subscribe(ctx context.Context, notifType NotificationType,
	recvChan interface{}, closeChan func()) {

	sub := subscriber{
		subCtx:   ctx,
		recvChan: recvChan,
	}

	m.addSubscriber(notifType, sub)

	// Start a goroutine to remove the subscriber when the context is
	// canceled.
	go func() {
		<-ctx.Done()
		m.removeSubscriber(notifType, sub)
		closeChan()
	}()
}

// NotifyTransfer queues a transfer notification.
//
// NOTE: Part of the settlement.Notifier interface.
func (m *Manager) NotifyTransfer(transfer *settlement.Transfer) {
	m.enqueue(transfer)
}

// NotifyResult queues a settlement notification.
//
// NOTE: Part of the settlement.Notifier interface.
func (m *Manager) NotifyResult(result *settlement.Result) {
	m.enqueue(result)
}

func (m *Manager) enqueue(notification interface{}) {
	select {
	case m.queue <- notification:
	case <-m.quit:
		log.Debugf("Manager stopped, dropping notification %T",
			notification)
	}
}

// Run starts the notification manager. It will keep on running until the
// context is canceled, forwarding every queued notification to the
// subscribers.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.quit)

	for {
		select {
		case notification := <-m.queue:
			m.handleNotification(notification)

		case <-ctx.Done():
			return nil
		}
	}
}

// handleNotification forwards a notification to the appropriate
// subscribers.
func (m *Manager) handleNotification(notification interface{}) {
	m.Lock()
	defer m.Unlock()

	switch n := notification.(type) {
	case *settlement.Transfer:
		log.Debugf("Transfer %v to %v", n.ID, n.TargetChain)

		for _, sub := range m.subscribers[NotificationTypeTransfer] {
			recvChan := sub.recvChan.(chan *settlement.Transfer)

			select {
			case recvChan <- n:
			case <-sub.subCtx.Done():
			}
		}

	case *settlement.Result:
		log.Debugf("Settlement %v from %v: %v", n.MessageID,
			n.FromChain, n.Outcome)

		for _, sub := range m.subscribers[NotificationTypeResult] {
			recvChan := sub.recvChan.(chan *settlement.Result)

			select {
			case recvChan <- n:
			case <-sub.subCtx.Done():
			}
		}

	default:
		log.Warnf("Received unknown notification type: %T",
			notification)
	}
}

// addSubscriber adds a subscriber to the manager.
func (m *Manager) addSubscriber(notifType NotificationType, sub subscriber) {
	m.Lock()
	defer m.Unlock()
	m.subscribers[notifType] = append(m.subscribers[notifType], sub)
}

// removeSubscriber removes a subscriber from the manager.
func (m *Manager) removeSubscriber(notifType NotificationType, sub subscriber) {
	m.Lock()
	defer m.Unlock()
	subs := m.subscribers[notifType]
	newSubs := make([]subscriber, 0, len(subs))
	for _, s := range subs {
		if s != sub {
			newSubs = append(newSubs, s)
		}
	}
	m.subscribers[notifType] = newSubs
}
