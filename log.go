package highway

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/highwayswap/highway/transport"
)

// Subsystem defines the logging code for this subsystem.
const Subsystem = "HWAY"

// log is a logger that is initialized with no output filters. This means the
// package will not perform any logging by default until the caller requests
// it.
var log btclog.Logger

// The default amount of logging is none.
func init() {
	UseLogger(btclog.Disabled)
}

// DisableLog disables all library log output. Logging output is disabled by
// default until UseLogger is called.
func DisableLog() {
	UseLogger(btclog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// SwapLog logs with a short message id prefix.
type SwapLog struct {
	// Logger is the underlying based logger.
	Logger btclog.Logger

	// ID identifies the target swap.
	ID transport.MessageID
}

// Infof formats message according to format specifier and writes to
// log with LevelInfo.
func (s *SwapLog) Infof(format string, params ...interface{}) {
	s.Logger.Infof("%v "+format, s.args(params)...)
}

// Warnf formats message according to format specifier and writes to
// log with LevelWarn.
func (s *SwapLog) Warnf(format string, params ...interface{}) {
	s.Logger.Warnf("%v "+format, s.args(params)...)
}

// Errorf formats message according to format specifier and writes to
// log with LevelError.
func (s *SwapLog) Errorf(format string, params ...interface{}) {
	s.Logger.Errorf("%v "+format, s.args(params)...)
}

func (s *SwapLog) args(params []interface{}) []interface{} {
	return append([]interface{}{s.ID.Short()}, params...)
}
