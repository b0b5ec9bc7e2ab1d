package sqlc

import (
	"context"
)

const settlementColumns = `id, message_id, from_chain, outcome, recipient,
asset, caller, amount, change_amount, released, fee_paid, trade_error,
emitter, log_data, settle_time`

const insertSettlement = `
INSERT INTO settlements (
    message_id, from_chain, outcome, recipient, asset, caller, amount,
    change_amount, released, fee_paid, trade_error, emitter, log_data,
    settle_time
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
) RETURNING id`

type InsertSettlementParams struct {
	MessageID    []byte
	FromChain    int32
	Outcome      int16
	Recipient    []byte
	Asset        []byte
	Caller       []byte
	Amount       string
	ChangeAmount string
	Released     string
	FeePaid      string
	TradeError   string
	Emitter      []byte
	LogData      []byte
	SettleTime   int64
}

func (q *Queries) InsertSettlement(ctx context.Context,
	arg InsertSettlementParams) (int64, error) {

	row := q.db.QueryRowContext(ctx, insertSettlement,
		arg.MessageID,
		arg.FromChain,
		arg.Outcome,
		arg.Recipient,
		arg.Asset,
		arg.Caller,
		arg.Amount,
		arg.ChangeAmount,
		arg.Released,
		arg.FeePaid,
		arg.TradeError,
		arg.Emitter,
		arg.LogData,
		arg.SettleTime,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const insertSettlementState = `
INSERT INTO settlement_states (
    settlement_id, position, state
) VALUES (
    $1, $2, $3
)`

type InsertSettlementStateParams struct {
	SettlementID int64
	Position     int32
	State        string
}

func (q *Queries) InsertSettlementState(ctx context.Context,
	arg InsertSettlementStateParams) error {

	_, err := q.db.ExecContext(ctx, insertSettlementState,
		arg.SettlementID, arg.Position, arg.State,
	)
	return err
}

func scanSettlement(row rowScanner) (Settlement, error) {
	var i Settlement
	err := row.Scan(
		&i.ID,
		&i.MessageID,
		&i.FromChain,
		&i.Outcome,
		&i.Recipient,
		&i.Asset,
		&i.Caller,
		&i.Amount,
		&i.ChangeAmount,
		&i.Released,
		&i.FeePaid,
		&i.TradeError,
		&i.Emitter,
		&i.LogData,
		&i.SettleTime,
	)
	return i, err
}

const getSettlement = `SELECT ` + settlementColumns + `
FROM settlements WHERE message_id = $1`

func (q *Queries) GetSettlement(ctx context.Context,
	messageID []byte) (Settlement, error) {

	row := q.db.QueryRowContext(ctx, getSettlement, messageID)
	return scanSettlement(row)
}

const getSettlements = `SELECT ` + settlementColumns + `
FROM settlements ORDER BY id`

func (q *Queries) GetSettlements(ctx context.Context) ([]Settlement,
	error) {

	rows, err := q.db.QueryContext(ctx, getSettlements)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Settlement
	for rows.Next() {
		i, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getSettlementStates = `
SELECT state FROM settlement_states
WHERE settlement_id = $1
ORDER BY position`

func (q *Queries) GetSettlementStates(ctx context.Context,
	settlementID int64) ([]string, error) {

	rows, err := q.db.QueryContext(ctx, getSettlementStates, settlementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, err
		}
		items = append(items, state)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
