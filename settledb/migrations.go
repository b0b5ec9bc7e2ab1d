package settledb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// migrationsPath is the directory of the migrations in the embedded schema
// file system.
const migrationsPath = "migrations"

// migrateLogger adapts the package logger to the migrate.Logger interface.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Infof("%s", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (migrateLogger) Verbose() bool {
	return false
}

// applyMigrations brings the database behind driver up to the latest
// version found in fsys.
func applyMigrations(fsys fs.FS, driver database.Driver, path,
	dbName string) error {

	source, err := iofs.New(fsys, path)
	if err != nil {
		return fmt.Errorf("unable to open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return fmt.Errorf("unable to create migration: %w", err)
	}
	m.Log = migrateLogger{}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Debugf("Database %v is up to date", dbName)

	case err != nil:
		return fmt.Errorf("unable to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	if dirty {
		return fmt.Errorf("database %v is dirty at version %d", dbName,
			version)
	}

	log.Infof("Database %v at schema version %d", dbName, version)

	return nil
}

// replacerFS is a file system that rewrites the content of every file it
// opens. It lets the sqlite schema be reused for postgres.
type replacerFS struct {
	parent   fs.FS
	replacer *strings.Replacer
}

// newReplacerFS returns a file system that replaces every key of
// replacements with its value.
func newReplacerFS(parent fs.FS, replacements map[string]string) *replacerFS {
	var pairs []string
	for from, to := range replacements {
		pairs = append(pairs, from, to)
	}

	return &replacerFS{
		parent:   parent,
		replacer: strings.NewReplacer(pairs...),
	}
}

// Open opens the named file. Directories are passed through unchanged.
func (r *replacerFS) Open(name string) (fs.File, error) {
	f, err := r.parent.Open(name)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		return f, nil
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	replaced := []byte(r.replacer.Replace(string(content)))

	return &replacedFile{
		Reader: bytes.NewReader(replaced),
		info: replacedInfo{
			FileInfo: stat,
			size:     int64(len(replaced)),
		},
	}, nil
}

type replacedFile struct {
	*bytes.Reader

	info replacedInfo
}

func (f *replacedFile) Stat() (fs.FileInfo, error) {
	return f.info, nil
}

func (f *replacedFile) Close() error {
	return nil
}

type replacedInfo struct {
	fs.FileInfo

	size int64
}

func (i replacedInfo) Size() int64 {
	return i.size
}
