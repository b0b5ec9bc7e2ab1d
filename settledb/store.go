package settledb

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/highwayswap/highway/fsm"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/settledb/sqlc"
	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/transport"
	"github.com/holiman/uint256"
)

// CreateTransfer adds a committed outbound transfer.
func (db *BaseDB) CreateTransfer(ctx context.Context,
	transfer *settlement.Transfer) error {

	err := db.ExecTx(ctx, NewSqlWriteOpts(), func(tx *sqlc.Queries) error {
		return tx.InsertTransfer(ctx, sqlc.InsertTransferParams{
			MessageID:      transfer.ID[:],
			Sequence:       int64(transfer.Sequence),
			SourceChain:    int32(transfer.SourceChain),
			TargetChain:    int32(transfer.TargetChain),
			Sender:         transfer.Sender.Bytes(),
			SourceAsset:    transfer.SourceAsset.Bytes(),
			AmountIn:       amountString(transfer.AmountIn),
			Refunded:       amountString(transfer.Refunded),
			BridgeAmount:   amountString(transfer.BridgeAmount),
			RelayerFee:     amountString(transfer.RelayerFee),
			Recipient:      transfer.Recipient[:],
			Payload:        append([]byte{}, transfer.Payload...),
			Nonce:          int64(transfer.Nonce),
			InitiationTime: db.clock.Now().Unix(),
		})
	})

	return mapSQLError(err)
}

// FetchTransfer returns the transfer carried by the given message.
func (db *BaseDB) FetchTransfer(ctx context.Context,
	id transport.MessageID) (*settlement.Transfer, error) {

	var transfer *settlement.Transfer
	err := db.ExecTx(ctx, NewSqlReadOpts(), func(tx *sqlc.Queries) error {
		row, err := tx.GetTransfer(ctx, id[:])
		if err != nil {
			return err
		}

		transfer, err = convertTransferRow(row)
		return err
	})
	if err != nil {
		return nil, mapSQLError(err)
	}

	return transfer, nil
}

// FetchTransfers returns all transfers in insertion order.
func (db *BaseDB) FetchTransfers(ctx context.Context) ([]*settlement.Transfer,
	error) {

	var transfers []*settlement.Transfer
	err := db.ExecTx(ctx, NewSqlReadOpts(), func(tx *sqlc.Queries) error {
		rows, err := tx.GetTransfers(ctx)
		if err != nil {
			return err
		}

		transfers = make([]*settlement.Transfer, len(rows))
		for i, row := range rows {
			transfers[i], err = convertTransferRow(row)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, mapSQLError(err)
	}

	return transfers, nil
}

// CreateResult adds the result of a settled message along with the states it
// went through.
func (db *BaseDB) CreateResult(ctx context.Context,
	result *settlement.Result) error {

	var (
		emitter common.Address
		logData = []byte{}
	)
	if result.Log != nil {
		emitter = result.Log.Address
		logData = result.Log.Data
	}

	var tradeErr string
	if result.TradeErr != nil {
		tradeErr = result.TradeErr.Error()
	}

	err := db.ExecTx(ctx, NewSqlWriteOpts(), func(tx *sqlc.Queries) error {
		id, err := tx.InsertSettlement(ctx, sqlc.InsertSettlementParams{
			MessageID:    result.MessageID[:],
			FromChain:    int32(result.FromChain),
			Outcome:      int16(result.Outcome),
			Recipient:    result.Recipient.Bytes(),
			Asset:        result.Asset.Bytes(),
			Caller:       result.Caller.Bytes(),
			Amount:       amountString(result.Amount),
			ChangeAmount: amountString(result.Change),
			Released:     amountString(result.Released),
			FeePaid:      amountString(result.FeePaid),
			TradeError:   tradeErr,
			Emitter:      emitter.Bytes(),
			LogData:      logData,
			SettleTime:   db.clock.Now().Unix(),
		})
		if err != nil {
			return err
		}

		for i, state := range result.Path {
			err := tx.InsertSettlementState(
				ctx, sqlc.InsertSettlementStateParams{
					SettlementID: id,
					Position:     int32(i),
					State:        string(state),
				},
			)
			if err != nil {
				return err
			}
		}

		return nil
	})

	return mapSQLError(err)
}

// FetchResult returns the settlement of the given message.
func (db *BaseDB) FetchResult(ctx context.Context,
	id transport.MessageID) (*settlement.Result, error) {

	var result *settlement.Result
	err := db.ExecTx(ctx, NewSqlReadOpts(), func(tx *sqlc.Queries) error {
		row, err := tx.GetSettlement(ctx, id[:])
		if err != nil {
			return err
		}

		states, err := tx.GetSettlementStates(ctx, row.ID)
		if err != nil {
			return err
		}

		result, err = convertSettlementRow(row, states)
		return err
	})
	if err != nil {
		return nil, mapSQLError(err)
	}

	return result, nil
}

// FetchResults returns all settlements in insertion order.
func (db *BaseDB) FetchResults(ctx context.Context) ([]*settlement.Result,
	error) {

	var results []*settlement.Result
	err := db.ExecTx(ctx, NewSqlReadOpts(), func(tx *sqlc.Queries) error {
		rows, err := tx.GetSettlements(ctx)
		if err != nil {
			return err
		}

		results = make([]*settlement.Result, len(rows))
		for i, row := range rows {
			states, err := tx.GetSettlementStates(ctx, row.ID)
			if err != nil {
				return err
			}

			results[i], err = convertSettlementRow(row, states)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, mapSQLError(err)
	}

	return results, nil
}

// amountString encodes an amount as a base 10 string. A nil amount is
// stored as zero.
func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}

	return v.Dec()
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	return v, nil
}

func messageID(b []byte) (transport.MessageID, error) {
	var id transport.MessageID
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid message id length %d", len(b))
	}
	copy(id[:], b)

	return id, nil
}

func convertTransferRow(row sqlc.Transfer) (*settlement.Transfer, error) {
	id, err := messageID(row.MessageID)
	if err != nil {
		return nil, err
	}

	if len(row.Recipient) != len(payload.Recipient{}) {
		return nil, fmt.Errorf("invalid recipient length %d",
			len(row.Recipient))
	}
	var recipient payload.Recipient
	copy(recipient[:], row.Recipient)

	transfer := &settlement.Transfer{
		ID:          id,
		Sequence:    uint64(row.Sequence),
		SourceChain: transport.ChainID(row.SourceChain),
		TargetChain: transport.ChainID(row.TargetChain),
		Sender:      common.BytesToAddress(row.Sender),
		SourceAsset: common.BytesToAddress(row.SourceAsset),
		Recipient:   recipient,
		Payload:     row.Payload,
		Nonce:       uint32(row.Nonce),
	}

	amounts := []struct {
		dst **uint256.Int
		src string
	}{
		{&transfer.AmountIn, row.AmountIn},
		{&transfer.Refunded, row.Refunded},
		{&transfer.BridgeAmount, row.BridgeAmount},
		{&transfer.RelayerFee, row.RelayerFee},
	}
	for _, a := range amounts {
		if *a.dst, err = parseAmount(a.src); err != nil {
			return nil, err
		}
	}

	return transfer, nil
}

func convertSettlementRow(row sqlc.Settlement,
	states []string) (*settlement.Result, error) {

	id, err := messageID(row.MessageID)
	if err != nil {
		return nil, err
	}

	result := &settlement.Result{
		MessageID: id,
		FromChain: transport.ChainID(row.FromChain),
		Outcome:   settlement.Outcome(row.Outcome),
		Recipient: common.BytesToAddress(row.Recipient),
		Asset:     common.BytesToAddress(row.Asset),
		Caller:    common.BytesToAddress(row.Caller),
	}

	amounts := []struct {
		dst **uint256.Int
		src string
	}{
		{&result.Amount, row.Amount},
		{&result.Change, row.ChangeAmount},
		{&result.Released, row.Released},
		{&result.FeePaid, row.FeePaid},
	}
	for _, a := range amounts {
		if *a.dst, err = parseAmount(a.src); err != nil {
			return nil, err
		}
	}

	if row.TradeError != "" {
		result.TradeErr = errors.New(row.TradeError)
	}

	result.Path = make([]fsm.StateType, len(states))
	for i, state := range states {
		result.Path[i] = fsm.StateType(state)
	}

	if len(row.LogData) > 0 {
		result.Log = &types.Log{
			Address: common.BytesToAddress(row.Emitter),
			Topics: []common.Hash{
				settlement.SwapResultTopic(),
				common.BytesToHash(result.Recipient.Bytes()),
			},
			Data: row.LogData,
		}
	}

	return result, nil
}
