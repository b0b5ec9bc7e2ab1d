package test

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
)

// Guard implements a test level timeout and fails the test if it leaves
// goroutines behind. The optional timeout replaces the default of five
// seconds.
func Guard(t *testing.T, timeout ...time.Duration) func() {
	limit := 5 * time.Second
	if len(timeout) > 0 {
		limit = timeout[0]
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(limit):
			DumpGoroutines()

			panic("test timeout")
		case <-done:
		}
	}()

	fn := leaktest.CheckTimeout(t, Timeout)

	return func() {
		close(done)
		fn()
	}
}
