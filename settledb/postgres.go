package settledb

import (
	"database/sql"
	"fmt"

	postgres_migrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/highwayswap/highway/settledb/sqlc"
	_ "github.com/lib/pq" // Register the postgres driver.
	"github.com/lightningnetwork/lnd/clock"
)

const (
	dsnTemplate = "postgres://%v:%v@%v:%d/%v?sslmode=%v"
)

// PostgresConfig holds the postgres database configuration.
type PostgresConfig struct {
	SkipMigrations     bool   `long:"skipmigrations" description:"Skip applying migrations on startup."`
	Host               string `long:"host" description:"Database server hostname."`
	Port               int    `long:"port" description:"Database server port."`
	User               string `long:"user" description:"Database user."`
	Password           string `long:"password" description:"Database user's password."`
	DBName             string `long:"dbname" description:"Database name to use."`
	MaxOpenConnections int32  `long:"maxconnections" description:"Max open connections to keep alive to the database server."`
	RequireSSL         bool   `long:"requiressl" description:"Whether to require using SSL (mode: require) when connecting to the server."`
}

// DSN returns the dns to connect to the database.
func (s *PostgresConfig) DSN(hidePassword bool) string {
	var sslMode = "disable"
	if s.RequireSSL {
		sslMode = "require"
	}

	password := s.Password
	if hidePassword {
		// Placeholder used for logging the DSN safely.
		password = "****"
	}

	return fmt.Sprintf(dsnTemplate, s.User, password, s.Host, s.Port,
		s.DBName, sslMode)
}

// PostgresStore is a database store implementation that uses a Postgres
// backend.
type PostgresStore struct {
	cfg *PostgresConfig

	*BaseDB
}

// NewPostgresStore creates a new store that is backed by a Postgres database
// backend.
func NewPostgresStore(cfg *PostgresConfig,
	clock clock.Clock) (*PostgresStore, error) {

	log.Infof("Using SQL database '%s'", cfg.DSN(true))

	rawDb, err := sql.Open("postgres", cfg.DSN(false))
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConnections > 0 {
		rawDb.SetMaxOpenConns(int(cfg.MaxOpenConnections))
	}

	if !cfg.SkipMigrations {
		driver, err := postgres_migrate.WithInstance(
			rawDb, &postgres_migrate.Config{},
		)
		if err != nil {
			return nil, err
		}

		// The schema is written for sqlite, so the types postgres
		// spells differently are rewritten on the fly.
		postgresFS := newReplacerFS(sqlc.SqlSchemas, map[string]string{
			"BLOB":                "BYTEA",
			"INTEGER PRIMARY KEY": "SERIAL PRIMARY KEY",
		})

		err = applyMigrations(
			postgresFS, driver, migrationsPath, cfg.DBName,
		)
		if err != nil {
			return nil, err
		}
	}

	return &PostgresStore{
		cfg:    cfg,
		BaseDB: newBaseDB(rawDb, clock),
	}, nil
}
