package fsm

import (
	"sync"
)

// CachedObserver is an observer that caches the most recent transitions of
// the observed state machine.
type CachedObserver struct {
	lastNotification    Notification
	cachedNotifications *FixedSizeSlice[Notification]

	notificationMx sync.Mutex
}

// NewCachedObserver creates a new cached observer with the given maximum
// number of cached notifications.
func NewCachedObserver(maxElements int) *CachedObserver {
	return &CachedObserver{
		cachedNotifications: NewFixedSizeSlice[Notification](
			maxElements,
		),
	}
}

// Notify implements the Observer interface.
func (c *CachedObserver) Notify(notification Notification) {
	c.notificationMx.Lock()
	defer c.notificationMx.Unlock()

	c.cachedNotifications.Add(notification)
	c.lastNotification = notification
}

// GetCachedNotifications returns a copy of the cached notifications.
func (c *CachedObserver) GetCachedNotifications() []Notification {
	c.notificationMx.Lock()
	defer c.notificationMx.Unlock()

	return c.cachedNotifications.Get()
}

// LastNotification returns the most recent notification.
func (c *CachedObserver) LastNotification() Notification {
	c.notificationMx.Lock()
	defer c.notificationMx.Unlock()

	return c.lastNotification
}

// StatePath returns the states entered, in order, as far as they are still
// cached.
func (c *CachedObserver) StatePath() []StateType {
	notifications := c.GetCachedNotifications()

	path := make([]StateType, 0, len(notifications))
	for _, n := range notifications {
		path = append(path, n.NextState)
	}

	return path
}

// FixedSizeSlice is a slice with a fixed size.
type FixedSizeSlice[T any] struct {
	data   []T
	maxLen int

	sync.Mutex
}

// NewFixedSizeSlice initializes a new FixedSizeSlice with a given maximum
// length.
func NewFixedSizeSlice[T any](maxLen int) *FixedSizeSlice[T] {
	return &FixedSizeSlice[T]{
		data:   make([]T, 0, maxLen),
		maxLen: maxLen,
	}
}

// Add appends a new element to the slice. If the slice reaches its maximum
// length, the first element is removed.
func (fs *FixedSizeSlice[T]) Add(element T) {
	fs.Lock()
	defer fs.Unlock()

	if len(fs.data) == fs.maxLen {
		fs.data = fs.data[1:]
	}
	fs.data = append(fs.data, element)
}

// Get returns a copy of the slice.
func (fs *FixedSizeSlice[T]) Get() []T {
	fs.Lock()
	defer fs.Unlock()

	data := make([]T, len(fs.data))
	copy(data, fs.data)

	return data
}
