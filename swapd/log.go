package swapd

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/highwayswap/highway"
	"github.com/highwayswap/highway/devnet"
	"github.com/highwayswap/highway/fsm"
	"github.com/highwayswap/highway/ledger"
	"github.com/highwayswap/highway/notifications"
	"github.com/highwayswap/highway/relayer"
	"github.com/highwayswap/highway/settledb"
	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/transport"
	"github.com/highwayswap/highway/venue"
	"github.com/lightningnetwork/lnd"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/signal"
)

// Subsystem defines the logging code for this subsystem.
const Subsystem = "HWYD"

var (
	logMgr *build.SubLoggerManager
	log    btclog.Logger
)

// The default amount of logging is none.
func init() {
	UseLogger(btclog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.SubLoggerManager, intercept signal.Interceptor) {
	logMgr = root

	lnd.AddSubLogger(root, Subsystem, intercept, UseLogger)
	lnd.AddSubLogger(
		root, highway.Subsystem, intercept, highway.UseLogger,
	)
	lnd.AddSubLogger(
		root, settlement.Subsystem, intercept, settlement.UseLogger,
	)
	lnd.AddSubLogger(root, ledger.Subsystem, intercept, ledger.UseLogger)
	lnd.AddSubLogger(root, venue.Subsystem, intercept, venue.UseLogger)
	lnd.AddSubLogger(
		root, transport.Subsystem, intercept, transport.UseLogger,
	)
	lnd.AddSubLogger(root, fsm.Subsystem, intercept, fsm.UseLogger)
	lnd.AddSubLogger(
		root, settledb.Subsystem, intercept, settledb.UseLogger,
	)
	lnd.AddSubLogger(
		root, notifications.Subsystem, intercept,
		notifications.UseLogger,
	)
	lnd.AddSubLogger(
		root, relayer.Subsystem, intercept, relayer.UseLogger,
	)
	lnd.AddSubLogger(root, devnet.Subsystem, intercept, devnet.UseLogger)
}
