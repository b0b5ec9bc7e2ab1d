package settlement

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// swapResultABI is the ABI of the event emitted once per settlement.
const swapResultABI = `[{
	"anonymous": false,
	"inputs": [
		{"indexed": true, "name": "recipient", "type": "address"},
		{"indexed": false, "name": "token", "type": "address"},
		{"indexed": false, "name": "caller", "type": "address"},
		{"indexed": false, "name": "amount", "type": "uint256"},
		{"indexed": false, "name": "success", "type": "uint8"}
	],
	"name": "SwapResult",
	"type": "event"
}]`

// swapResultEvent is the parsed SwapResult event.
var swapResultEvent = mustParseEvent(swapResultABI, "SwapResult")

// ErrNotSwapResult is returned when parsing a log of another event.
var ErrNotSwapResult = errors.New("log is not a SwapResult event")

func mustParseEvent(raw, name string) abi.Event {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ABI: %v", err))
	}

	event, ok := parsed.Events[name]
	if !ok {
		panic(fmt.Sprintf("event %s not found", name))
	}

	return event
}

// SwapResultTopic returns the topic identifying SwapResult logs.
func SwapResultTopic() common.Hash {
	return swapResultEvent.ID
}

// SwapResultEvent is the decoded form of a SwapResult log.
type SwapResultEvent struct {
	Recipient common.Address
	Token     common.Address
	Caller    common.Address
	Amount    *uint256.Int
	Success   uint8
}

// newSwapResultLog builds the log emitted by the agent for a settlement.
func newSwapResultLog(agent common.Address, result *Result) (*types.Log,
	error) {

	data, err := swapResultEvent.Inputs.NonIndexed().Pack(
		result.Asset, result.Caller, result.Amount.ToBig(),
		result.Success(),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to pack SwapResult: %w", err)
	}

	return &types.Log{
		Address: agent,
		Topics: []common.Hash{
			swapResultEvent.ID,
			common.BytesToHash(result.Recipient.Bytes()),
		},
		Data: data,
	}, nil
}

// ParseSwapResultLog decodes a SwapResult log.
func ParseSwapResultLog(l *types.Log) (*SwapResultEvent, error) {
	if len(l.Topics) != 2 || l.Topics[0] != swapResultEvent.ID {
		return nil, ErrNotSwapResult
	}

	values, err := swapResultEvent.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("unable to unpack SwapResult: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("%w: %d values", ErrNotSwapResult,
			len(values))
	}

	token, ok1 := values[0].(common.Address)
	caller, ok2 := values[1].(common.Address)
	amount, ok3 := values[2].(*big.Int)
	success, ok4 := values[3].(uint8)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("%w: unexpected value types",
			ErrNotSwapResult)
	}

	amountU, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("%w: amount overflows", ErrNotSwapResult)
	}

	return &SwapResultEvent{
		Recipient: common.BytesToAddress(l.Topics[1].Bytes()),
		Token:     token,
		Caller:    caller,
		Amount:    amountU,
		Success:   success,
	}, nil
}
