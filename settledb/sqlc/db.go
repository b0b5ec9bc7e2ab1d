package sqlc

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result,
		error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows,
		error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// New returns the queries bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries runs the statements of the settlement database.
type Queries struct {
	db DBTX
}

// WithTx returns the queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}
