package swapd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway"
	"github.com/highwayswap/highway/devnet"
	"github.com/highwayswap/highway/notifications"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/relayer"
	"github.com/highwayswap/highway/settledb"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server.
const shutdownTimeout = 5 * time.Second

var (
	// errOnlyStartOnce is the error that is returned if the daemon is
	// started more than once.
	errOnlyStartOnce = errors.New("daemon can only be started once")
)

// ListenerCfg holds closures used to retrieve listeners for the HTTP API.
type ListenerCfg struct {
	// httpListener returns a listener to use for the HTTP API.
	httpListener func() (net.Listener, error)
}

// NewListenerCfg creates and returns a new ListenerCfg listening on the
// configured address, or on lis if it is set.
func NewListenerCfg(cfg *Config, lis net.Listener) *ListenerCfg {
	return &ListenerCfg{
		httpListener: func() (net.Listener, error) {
			if lis != nil {
				return lis, nil
			}

			return net.Listen("tcp", cfg.HTTPListen)
		},
	}
}

// Daemon is the highway daemon. It runs a devnet of two chains together
// with a relayer for each, journals every swap and serves the HTTP API.
type Daemon struct {
	// To be used atomically.
	started int32

	// ErrChan is an error channel that users of the Daemon struct must use
	// to detect runtime errors and also whether a shutdown is fully
	// completed.
	ErrChan chan error

	cfg           *Config
	listenerCfg   *ListenerCfg
	clock         clock.Clock
	mainCtxCancel func()

	store      settledb.Store
	checkpoint *relayer.Checkpoint
	network    *devnet.Network
	manager    *notifications.Manager
	client     *highway.Client
	relayers   []*relayer.Relayer
	metrics    *metrics

	listener   net.Listener
	httpServer *http.Server

	stopOnce sync.Once
}

// New creates a new instance of the highway daemon.
func New(cfg *Config, lisCfg *ListenerCfg) *Daemon {
	return &Daemon{
		// We send exactly one message on this channel, so the buffer
		// lets us send it without blocking.
		ErrChan:     make(chan error, 1),
		cfg:         cfg,
		listenerCfg: lisCfg,
		clock:       clock.NewDefaultClock(),
	}
}

// Start starts the daemon and all its sub-services. It returns once they are
// running, runtime errors are reported on ErrChan.
func (d *Daemon) Start() error {
	if atomic.AddInt32(&d.started, 1) != 1 {
		return errOnlyStartOnce
	}

	log.Infof("Highway daemon %v starting on %v", highway.Version(),
		d.cfg.Network)

	if err := d.initialize(); err != nil {
		d.cleanup()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.mainCtxCancel = cancel

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return d.manager.Run(ctx)
	})

	for _, r := range d.relayers {
		r := r
		group.Go(func() error {
			return r.Run(ctx)
		})
	}

	group.Go(func() error {
		return d.metrics.run(ctx, d.manager)
	})

	group.Go(func() error {
		log.Infof("HTTP API listening on %v", d.listener.Addr())

		err := d.httpServer.Serve(d.listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	})

	group.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		return d.httpServer.Shutdown(shutdownCtx)
	})

	go func() {
		err := group.Wait()
		d.cleanup()

		log.Infof("Highway daemon stopped")
		d.ErrChan <- err
	}()

	return nil
}

// Stop initiates the shutdown of the daemon. The final error is reported on
// ErrChan once all sub-services stopped.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		log.Infof("Stopping highway daemon")

		if d.mainCtxCancel != nil {
			d.mainCtxCancel()
		}
	})
}

// Addr returns the address the HTTP API listens on.
func (d *Daemon) Addr() net.Addr {
	return d.listener.Addr()
}

// initialize creates every sub-service without starting any.
func (d *Daemon) initialize() error {
	cfg := d.cfg

	var err error
	d.store, err = openDatabase(cfg, d.clock)
	if err != nil {
		return fmt.Errorf("unable to open settlement journal: %w", err)
	}

	d.checkpoint, err = relayer.OpenCheckpoint(cfg.DataDir, d.clock)
	if err != nil {
		return fmt.Errorf("unable to open relayer checkpoint: %w", err)
	}

	d.manager = notifications.NewManager(&notifications.Config{})

	netCfg := devnet.DefaultConfig()
	netCfg.Version = payload.Version(cfg.PayloadVersion)
	netCfg.Clock = d.clock
	netCfg.Notifier = settledb.NewRecorder(d.store, d.manager)

	d.network, err = devnet.New(netCfg)
	if err != nil {
		return fmt.Errorf("unable to create network: %w", err)
	}

	d.client, err = highway.NewClient(&highway.ClientConfig{
		Network:       d.network,
		Notifications: d.manager,
		Store:         d.store,
		Clock:         d.clock,
	})
	if err != nil {
		return err
	}

	caller := common.HexToAddress(cfg.RelayerAccount)
	for _, chain := range d.network.Chains() {
		r, err := relayer.New(&relayer.Config{
			Settler:       chain.Agent,
			Source:        d.network.Hub,
			Caller:        caller,
			WrappedNative: chain.Config.WrappedNative,
			Checkpoint:    d.checkpoint,
			Ticker:        ticker.New(cfg.PollInterval),
		})
		if err != nil {
			return err
		}

		d.relayers = append(d.relayers, r)
	}

	d.metrics = newMetrics(d.network, d.checkpoint)

	faucetLimit, err := parseOptionalAmount(cfg.FaucetLimit)
	if err != nil {
		return fmt.Errorf("invalid faucet limit: %w", err)
	}

	d.listener, err = d.listenerCfg.httpListener()
	if err != nil {
		return fmt.Errorf("HTTP API unable to listen on %v: %w",
			cfg.HTTPListen, err)
	}

	api := &apiServer{
		client:      d.client,
		network:     d.network,
		relayer:     caller,
		faucetLimit: faucetLimit,
	}
	d.httpServer = &http.Server{
		Handler:           newRouter(api, d.metrics.registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return nil
}

// cleanup closes the databases. It is safe to call on a partially
// initialized daemon.
func (d *Daemon) cleanup() {
	if d.checkpoint != nil {
		if err := d.checkpoint.Close(); err != nil {
			log.Errorf("Unable to close relayer checkpoint: %v",
				err)
		}
	}

	if d.store != nil {
		if err := d.store.Close(); err != nil {
			log.Errorf("Unable to close settlement journal: %v",
				err)
		}
	}
}

// openDatabase opens the settlement journal of the configured backend.
func openDatabase(cfg *Config, clock clock.Clock) (settledb.Store, error) {
	switch cfg.DatabaseBackend {
	case DatabaseBackendSqlite:
		log.Infof("Opening sqlite3 database at: %v",
			cfg.Sqlite.DatabaseFileName)

		return settledb.NewSqliteStore(cfg.Sqlite, clock)

	case DatabaseBackendPostgres:
		log.Infof("Opening postgres database at: %v",
			cfg.Postgres.DSN(true))

		return settledb.NewPostgresStore(cfg.Postgres, clock)

	default:
		return nil, fmt.Errorf("unknown database backend: %s",
			cfg.DatabaseBackend)
	}
}
