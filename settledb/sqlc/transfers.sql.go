package sqlc

import (
	"context"
)

const transferColumns = `id, message_id, sequence, source_chain,
target_chain, sender, source_asset, amount_in, refunded, bridge_amount,
relayer_fee, recipient, payload, nonce, initiation_time`

const insertTransfer = `
INSERT INTO transfers (
    message_id, sequence, source_chain, target_chain, sender, source_asset,
    amount_in, refunded, bridge_amount, relayer_fee, recipient, payload,
    nonce, initiation_time
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
)`

type InsertTransferParams struct {
	MessageID      []byte
	Sequence       int64
	SourceChain    int32
	TargetChain    int32
	Sender         []byte
	SourceAsset    []byte
	AmountIn       string
	Refunded       string
	BridgeAmount   string
	RelayerFee     string
	Recipient      []byte
	Payload        []byte
	Nonce          int64
	InitiationTime int64
}

func (q *Queries) InsertTransfer(ctx context.Context,
	arg InsertTransferParams) error {

	_, err := q.db.ExecContext(ctx, insertTransfer,
		arg.MessageID,
		arg.Sequence,
		arg.SourceChain,
		arg.TargetChain,
		arg.Sender,
		arg.SourceAsset,
		arg.AmountIn,
		arg.Refunded,
		arg.BridgeAmount,
		arg.RelayerFee,
		arg.Recipient,
		arg.Payload,
		arg.Nonce,
		arg.InitiationTime,
	)
	return err
}

const getTransfer = `SELECT ` + transferColumns + `
FROM transfers WHERE message_id = $1`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransfer(row rowScanner) (Transfer, error) {
	var i Transfer
	err := row.Scan(
		&i.ID,
		&i.MessageID,
		&i.Sequence,
		&i.SourceChain,
		&i.TargetChain,
		&i.Sender,
		&i.SourceAsset,
		&i.AmountIn,
		&i.Refunded,
		&i.BridgeAmount,
		&i.RelayerFee,
		&i.Recipient,
		&i.Payload,
		&i.Nonce,
		&i.InitiationTime,
	)
	return i, err
}

func (q *Queries) GetTransfer(ctx context.Context,
	messageID []byte) (Transfer, error) {

	row := q.db.QueryRowContext(ctx, getTransfer, messageID)
	return scanTransfer(row)
}

const getTransfers = `SELECT ` + transferColumns + `
FROM transfers ORDER BY id`

func (q *Queries) GetTransfers(ctx context.Context) ([]Transfer, error) {
	rows, err := q.db.QueryContext(ctx, getTransfers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Transfer
	for rows.Next() {
		i, err := scanTransfer(rows)
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
