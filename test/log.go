package test

import (
	"os"

	"github.com/btcsuite/btclog/v2"
)

// logger writes test diagnostics to standard output.
var logger = btclog.NewSLogger(
	btclog.NewDefaultHandler(os.Stdout),
).SubSystem("TEST")
