package swapd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/relayer"
	"github.com/highwayswap/highway/settledb"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/lncfg"
)

const (
	// DatabaseBackendSqlite is the sqlite settlement journal.
	DatabaseBackendSqlite = "sqlite"

	// DatabaseBackendPostgres is the postgres settlement journal.
	DatabaseBackendPostgres = "postgres"

	defaultConfigFilename = "highwayd.conf"
)

var (
	highwayDirBase = btcutil.AppDataDir("highway", false)

	defaultNetwork                = "devnet"
	defaultLogLevel               = "info"
	defaultLogDirname             = "logs"
	defaultLogFilename            = "highwayd.log"
	defaultSqliteDatabaseFileName = "settlements.db"
	defaultLogDir                 = filepath.Join(
		highwayDirBase, defaultLogDirname,
	)
	defaultConfigFile = filepath.Join(
		highwayDirBase, defaultNetwork, defaultConfigFilename,
	)
	defaultSqliteDatabasePath = filepath.Join(
		highwayDirBase, defaultNetwork, defaultSqliteDatabaseFileName,
	)

	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10

	defaultHTTPListen     = "localhost:8089"
	defaultPayloadVersion = uint8(payload.V3)
	defaultRelayerAccount = "0x0000000000000000000000000000000000004e1a"
	defaultFaucetLimit    = "1000"
)

type viewParameters struct{}

// Config holds the options of the daemon.
type Config struct {
	ShowVersion bool   `long:"version" description:"Display version information and exit"`
	Network     string `long:"network" description:"network to run on" choice:"devnet" choice:"regtest"`
	HTTPListen  string `long:"httplisten" description:"Address to listen on for HTTP clients"`

	HighwayDir string `long:"highwaydir" description:"The directory for all of highway's data."`
	ConfigFile string `long:"configfile" description:"Path to configuration file."`
	DataDir    string `long:"datadir" description:"Directory for the settlement journal and relayer checkpoint."`
	LogDir     string `long:"logdir" description:"Directory to log output."`

	MaxLogFiles    int `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	DatabaseBackend string                   `long:"databasebackend" description:"The database backend to use for the settlement journal." choice:"sqlite" choice:"postgres"`
	Sqlite          *settledb.SqliteConfig   `group:"sqlite" namespace:"sqlite"`
	Postgres        *settledb.PostgresConfig `group:"postgres" namespace:"postgres"`

	Logging *build.LogConfig `group:"logging" namespace:"logging"`

	PayloadVersion uint8         `long:"payloadversion" description:"The payload layout both agents use, 2 or 3."`
	RelayerAccount string        `long:"relayeraccount" description:"The account submitting messages. It earns the relayer fees."`
	PollInterval   time.Duration `long:"pollinterval" description:"How often the relayers look for new messages."`
	FaucetLimit    string        `long:"faucetlimit" description:"The largest native amount the faucet hands out per call. Zero disables the faucet."`

	View viewParameters `command:"view" alias:"v" description:"View all swaps in the settlement journal. This command can only be executed when highwayd is not running."`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		Network:         defaultNetwork,
		HTTPListen:      defaultHTTPListen,
		HighwayDir:      highwayDirBase,
		ConfigFile:      defaultConfigFile,
		DataDir:         highwayDirBase,
		LogDir:          defaultLogDir,
		MaxLogFiles:     defaultMaxLogFiles,
		MaxLogFileSize:  defaultMaxLogFileSize,
		DebugLevel:      defaultLogLevel,
		DatabaseBackend: DatabaseBackendSqlite,
		Sqlite: &settledb.SqliteConfig{
			DatabaseFileName: defaultSqliteDatabasePath,
		},
		Postgres: &settledb.PostgresConfig{
			Host:               "localhost",
			Port:               5432,
			MaxOpenConnections: 10,
		},
		Logging:        build.DefaultLogConfig(),
		PayloadVersion: defaultPayloadVersion,
		RelayerAccount: defaultRelayerAccount,
		PollInterval:   relayer.DefaultPollInterval,
		FaucetLimit:    defaultFaucetLimit,
	}
}

// Validate cleans up paths in the config provided and validates it.
func Validate(cfg *Config) error {
	// Cleanup any paths before we use them.
	cfg.HighwayDir = lncfg.CleanAndExpandPath(cfg.HighwayDir)
	cfg.DataDir = lncfg.CleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = lncfg.CleanAndExpandPath(cfg.LogDir)

	// Since our highway directory overrides our log/data dir values, make
	// sure that they are not set when highway dir is set. We fail hard
	// here rather than overwriting and potentially confusing the user.
	logDirSet := cfg.LogDir != defaultLogDir
	dataDirSet := cfg.DataDir != highwayDirBase
	highwayDirSet := cfg.HighwayDir != highwayDirBase

	if highwayDirSet {
		if logDirSet {
			return errors.New("highwaydir overwrites logdir, " +
				"please only set one value")
		}

		if dataDirSet {
			return errors.New("highwaydir overwrites datadir, " +
				"please only set one value")
		}

		// Once we are satisfied that neither config value was set, we
		// replace them with our highway dir.
		cfg.DataDir = cfg.HighwayDir
		cfg.LogDir = filepath.Join(cfg.HighwayDir, defaultLogDirname)
	}

	// Append the network type to the data and log directory so they are
	// "namespaced" per network.
	cfg.DataDir = filepath.Join(cfg.DataDir, cfg.Network)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.Network)

	// The default sqlite file follows the data dir unless it was set
	// explicitly.
	if cfg.Sqlite.DatabaseFileName == defaultSqliteDatabasePath {
		cfg.Sqlite.DatabaseFileName = filepath.Join(
			cfg.DataDir, defaultSqliteDatabaseFileName,
		)
	}
	cfg.Sqlite.DatabaseFileName = lncfg.CleanAndExpandPath(
		cfg.Sqlite.DatabaseFileName,
	)

	switch cfg.DatabaseBackend {
	case DatabaseBackendSqlite, DatabaseBackendPostgres:

	default:
		return fmt.Errorf("unknown database backend %q",
			cfg.DatabaseBackend)
	}

	_, err := payload.NewCodec(payload.Version(cfg.PayloadVersion))
	if err != nil {
		return err
	}

	if !common.IsHexAddress(cfg.RelayerAccount) {
		return fmt.Errorf("invalid relayer account %q",
			cfg.RelayerAccount)
	}
	if common.HexToAddress(cfg.RelayerAccount) == (common.Address{}) {
		return errors.New("relayer account must not be the zero " +
			"address")
	}

	if cfg.MaxLogFiles < 0 || cfg.MaxLogFileSize <= 0 {
		return fmt.Errorf("invalid log rotation %d files of %d MB",
			cfg.MaxLogFiles, cfg.MaxLogFileSize)
	}

	// The rotation flags take precedence over the logging group.
	cfg.Logging.File.MaxLogFiles = cfg.MaxLogFiles
	cfg.Logging.File.MaxLogFileSize = cfg.MaxLogFileSize

	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v",
			cfg.PollInterval)
	}

	// If either of these directories do not exist, create them.
	if err := os.MkdirAll(cfg.DataDir, os.ModePerm); err != nil {
		return err
	}

	return os.MkdirAll(cfg.LogDir, os.ModePerm)
}

// getConfigPath gets our config path based on the values that are set in our
// config.
func getConfigPath(cfg Config, highwayDir string) string {
	// If the config file path provided by the user is set, then we just
	// use this value.
	if cfg.ConfigFile != defaultConfigFile {
		return lncfg.CleanAndExpandPath(cfg.ConfigFile)
	}

	// If the user has set a highway directory that is different to the
	// default we will use this highway directory as the location of our
	// config file. We do not namespace by network, because this is a
	// custom directory.
	if highwayDir != highwayDirBase {
		return filepath.Join(highwayDir, defaultConfigFilename)
	}

	// Otherwise, we are using our default highway directory, and the user
	// did not set a config file path. We use our default highway dir,
	// namespaced by network.
	return filepath.Join(highwayDir, cfg.Network, defaultConfigFilename)
}
