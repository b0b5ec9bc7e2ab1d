package test

import (
	"errors"
	"os"
	"runtime/pprof"
	"time"
)

var (
	// Timeout is the default timeout when tests wait for something to
	// happen.
	Timeout = time.Second * 5

	// ErrTimeout is returned on timeout.
	ErrTimeout = errors.New("test timeout")
)

// DumpGoroutines dumps all currently running goroutines.
func DumpGoroutines() {
	logger.Warnf("Dumping goroutines")

	err := pprof.Lookup("goroutine").WriteTo(os.Stdout, 1)
	if err != nil {
		logger.Errorf("Unable to dump goroutines: %v", err)
	}
}

// Receive waits for a value on ch and fails with ErrTimeout if none arrives
// within Timeout.
func Receive[T any](ch <-chan T) (T, error) {
	select {
	case v := <-ch:
		return v, nil

	case <-time.After(Timeout):
		var zero T
		return zero, ErrTimeout
	}
}
