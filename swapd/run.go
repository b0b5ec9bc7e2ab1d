package swapd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/highwayswap/highway"
	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/lncfg"
	"github.com/lightningnetwork/lnd/signal"
)

// Run starts the highway daemon and blocks until it's shut down again.
func Run() error {
	config := DefaultConfig()

	// Parse command line flags.
	parser := flags.NewParser(&config, flags.Default)
	parser.SubcommandsOptional = true

	_, err := parser.Parse()
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		return nil
	}
	if err != nil {
		return err
	}

	// Parse ini file.
	highwayDir := lncfg.CleanAndExpandPath(config.HighwayDir)
	configFile := getConfigPath(config, highwayDir)

	if err := flags.IniParse(configFile, &config); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		if _, ok := err.(*flags.IniError); ok {
			return err
		}
	}

	// Parse command line flags again to restore flags overwritten by ini
	// parse.
	_, err = parser.Parse()
	if err != nil {
		return err
	}

	// Start listening for signal interrupts regardless of which command
	// we are running. The interceptor also lets critical log messages
	// shut the daemon down.
	shutdownInterceptor, err := signal.Intercept()
	if err != nil {
		return err
	}

	logWriter := build.NewRotatingLogWriter()
	handlers := build.NewDefaultLogHandlers(config.Logging, logWriter)
	SetupLoggers(
		build.NewSubLoggerManager(handlers...), shutdownInterceptor,
	)

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if config.ShowVersion {
		fmt.Println(appName, "version", highway.Version())
		os.Exit(0)
	}

	// Special show command to list supported subsystems and exit.
	if config.DebugLevel == "show" {
		fmt.Printf("Supported subsystems: %v\n",
			logMgr.SupportedSubsystems())
		os.Exit(0)
	}

	// Validate our config before we proceed.
	if err := Validate(&config); err != nil {
		return err
	}

	// Initialize logging at the default logging level.
	err = logWriter.InitLogRotator(
		config.Logging.File,
		filepath.Join(config.LogDir, defaultLogFilename),
	)
	if err != nil {
		return err
	}
	defer logWriter.Close()

	err = build.ParseAndSetDebugLevels(config.DebugLevel, logMgr)
	if err != nil {
		return err
	}

	// Print the version before executing either primary directive.
	log.Infof("Version: %v", highway.Version())

	// Execute command.
	if parser.Active == nil {
		return runDaemon(&config, shutdownInterceptor)
	}

	if parser.Active.Name == "view" {
		return view(&config, os.Stdout)
	}

	return fmt.Errorf("unimplemented command %v", parser.Active.Name)
}

// runDaemon runs the daemon until it fails or the process is interrupted.
func runDaemon(config *Config, interceptor signal.Interceptor) error {
	daemon := New(config, NewListenerCfg(config, nil))
	if err := daemon.Start(); err != nil {
		return err
	}

	select {
	case <-interceptor.ShutdownChannel():
		log.Infof("Received SIGINT (Ctrl+C).")
		daemon.Stop()

		// The above stop will return immediately. But we'll be
		// notified on the error channel once the process is complete.
		return <-daemon.ErrChan

	case err := <-daemon.ErrChan:
		return err
	}
}
