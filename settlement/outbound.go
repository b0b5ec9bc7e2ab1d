package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/fsm"
	"github.com/highwayswap/highway/ledger"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/transport"
	"github.com/highwayswap/highway/venue"
	"github.com/holiman/uint256"
)

// Outbound states.
var (
	// Received is the state where the input is pulled from the sender.
	Received = fsm.StateType("Received")

	// OriginTradeAttempted is the state where the origin leg is traded.
	OriginTradeAttempted = fsm.StateType("OriginTradeAttempted")

	// OriginTradeSucceeded is the state where the payload is encoded and
	// the transfer is requested.
	OriginTradeSucceeded = fsm.StateType("OriginTradeSucceeded")

	// TransferRequested is the final state of a successful swap.
	TransferRequested = fsm.StateType("TransferRequested")

	// OriginTradeFailed is the final state of a swap whose origin leg
	// failed. The call is reverted.
	OriginTradeFailed = fsm.StateType("OriginTradeFailed")

	// OutboundAborted is the final state of a swap that failed for any
	// other reason. The call is reverted.
	OutboundAborted = fsm.StateType("OutboundAborted")
)

// Outbound events.
var (
	// OnSwapRequested starts the outbound machine.
	OnSwapRequested = fsm.EventType("OnSwapRequested")

	// OnInputReceived is sent once the input is held by the agent.
	OnInputReceived = fsm.EventType("OnInputReceived")

	// OnOriginTradeSucceeded is sent when the origin leg traded.
	OnOriginTradeSucceeded = fsm.EventType("OnOriginTradeSucceeded")

	// OnOriginTradeFailed is sent when the origin leg failed.
	OnOriginTradeFailed = fsm.EventType("OnOriginTradeFailed")

	// OnTransferRequested is sent once the transport accepted the
	// transfer.
	OnTransferRequested = fsm.EventType("OnTransferRequested")
)

// outboundSwap is one outbound call.
type outboundSwap struct {
	*fsm.StateMachine

	agent *Agent
	tx    *ledger.Tx
	req   *SwapRequest
	route Route

	bridgeAmount *uint256.Int
	outcome      venue.Outcome
	transfer     *Transfer
}

// newOutboundSwap creates the state machine of one outbound call.
func (a *Agent) newOutboundSwap(tx *ledger.Tx, req *SwapRequest,
	route Route) *outboundSwap {

	s := &outboundSwap{
		agent: a,
		tx:    tx,
		req:   req,
		route: route,
	}
	s.StateMachine = fsm.NewStateMachine(
		s.outboundStates(), defaultObserverSize,
	)
	s.ActionEntryFunc = s.logTransition

	return s
}

// OutboundStates returns the states of the outbound machine.
func OutboundStates() fsm.States {
	return (&outboundSwap{}).outboundStates()
}

func (s *outboundSwap) outboundStates() fsm.States {
	return fsm.States{
		fsm.EmptyState: fsm.State{
			Transitions: fsm.Transitions{
				OnSwapRequested: Received,
			},
		},
		Received: fsm.State{
			Transitions: fsm.Transitions{
				OnInputReceived: OriginTradeAttempted,
				fsm.OnError:     OutboundAborted,
			},
			Action: s.receiveInputAction,
		},
		OriginTradeAttempted: fsm.State{
			Transitions: fsm.Transitions{
				OnOriginTradeSucceeded: OriginTradeSucceeded,
				OnOriginTradeFailed:    OriginTradeFailed,
				fsm.OnError:            OutboundAborted,
			},
			Action: s.originTradeAction,
		},
		OriginTradeSucceeded: fsm.State{
			Transitions: fsm.Transitions{
				OnTransferRequested: TransferRequested,
				fsm.OnError:         OutboundAborted,
			},
			Action: s.requestTransferAction,
		},
		TransferRequested: fsm.State{
			Action: fsm.NoOpAction,
		},
		OriginTradeFailed: fsm.State{
			Action: fsm.NoOpAction,
		},
		OutboundAborted: fsm.State{
			Action: fsm.NoOpAction,
		},
	}
}

// receiveInputAction pulls the input from the sender. Native input is the
// value attached to the call.
func (s *outboundSwap) receiveInputAction(_ context.Context,
	_ fsm.EventContext) fsm.EventType {

	err := s.tx.Transfer(
		sourceAsset(s.req), s.req.Sender, s.agent.cfg.Address,
		s.req.AmountIn,
	)
	if err != nil {
		return s.HandleError(fmt.Errorf("unable to receive input: %w",
			err))
	}

	return OnInputReceived
}

// originTradeAction trades the input into the bridge asset. The proceeds are
// measured on the agent's balance.
func (s *outboundSwap) originTradeAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	var (
		cfg    = s.agent.cfg
		before = s.tx.BalanceOf(cfg.BridgeAsset, cfg.Address)
		trade  = &venue.Trade{
			AssetIn:   s.req.Path[PathSource],
			AssetOut:  cfg.BridgeAsset,
			Amount:    s.req.AmountIn,
			Limit:     s.req.TargetAmount,
			PoolFee:   s.req.PoolFee,
			Deadline:  s.req.Deadline,
			Recipient: cfg.Address,
			Refundee:  s.req.Sender,
			NativeIn:  s.req.LegKind == payload.LegKindNative,
		}
	)

	switch s.req.TradeMode {
	case payload.ExactIn:
		s.outcome = s.agent.adapter.TradeExactIn(ctx, s.tx, trade)

	case payload.ExactOut:
		s.outcome = s.agent.adapter.TradeExactOut(ctx, s.tx, trade)
	}
	if !s.outcome.Ok() {
		s.Debugf("Origin trade failed: %v", s.outcome.Err)
		return OnOriginTradeFailed
	}

	delta, err := balanceDelta(
		before, s.tx.BalanceOf(cfg.BridgeAsset, cfg.Address),
	)
	if err != nil {
		return s.HandleError(err)
	}
	if delta.Lt(s.req.TargetAmount) {
		return s.HandleError(fmt.Errorf("origin trade delivered %v, "+
			"want at least %v", delta, s.req.TargetAmount))
	}
	s.bridgeAmount = delta

	return OnOriginTradeSucceeded
}

// encodePayload builds the payload for the target chain.
func (s *outboundSwap) encodePayload() ([]byte, error) {
	if s.route.RecipientOnly {
		return s.agent.codec.Encode(&payload.Payload{
			Recipient: s.req.TargetRecipient,
		})
	}

	instructions := &payload.Instructions{
		AssetOut:  s.req.Path[PathTarget],
		PoolAsset: s.req.Path[PathRemoteBridge],
		PoolFee:   s.req.DestinationPoolFee,
		TradeMode: s.req.TradeMode,
	}
	instructions.Amount.Set(s.req.DestinationAmount)
	instructions.Deadline.SetUint64(s.req.Deadline)

	// The V2 layout has no leg kind, the target entry point supplies it.
	if s.agent.cfg.Version == payload.V3 {
		instructions.LegKind = s.req.LegKind
	}

	return s.agent.codec.Encode(&payload.Payload{
		Recipient: s.req.TargetRecipient,
		Swap:      instructions,
	})
}

// requestTransferAction sends the bridge asset proceeds to the agent of the
// target chain.
func (s *outboundSwap) requestTransferAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	raw, err := s.encodePayload()
	if err != nil {
		return s.HandleError(err)
	}

	cfg := s.agent.cfg
	receipt, err := cfg.Transport.TransferWithPayload(
		ctx, s.tx, cfg.Address, &transport.TransferRequest{
			Asset:       cfg.BridgeAsset,
			Amount:      s.bridgeAmount,
			TargetChain: s.req.TargetChain,
			TargetRecipient: transport.AddressToBytes32(
				s.route.Agent,
			),
			RelayerFee: s.req.RelayerFee,
			Nonce:      s.req.Nonce,
			Payload:    raw,
		},
	)
	if err != nil {
		return s.HandleError(fmt.Errorf("transfer failed: %w", err))
	}

	s.transfer = &Transfer{
		ID:           receipt.ID,
		Sequence:     receipt.Sequence,
		SourceChain:  cfg.ChainID,
		TargetChain:  s.req.TargetChain,
		Sender:       s.req.Sender,
		SourceAsset:  sourceAsset(s.req),
		AmountIn:     s.outcome.AmountIn,
		Refunded:     s.outcome.Refunded,
		BridgeAmount: s.bridgeAmount,
		RelayerFee:   new(uint256.Int).Set(s.req.RelayerFee),
		Recipient:    s.req.TargetRecipient,
		Payload:      raw,
		Nonce:        s.req.Nonce,
	}

	return OnTransferRequested
}

// logTransition logs every transition of the machine.
func (s *outboundSwap) logTransition(_ context.Context,
	notification fsm.Notification) {

	s.Debugf("Previous: %v, Event: %v, Next: %v",
		notification.PreviousState, notification.Event,
		notification.NextState)
}

// Debugf logs a debug message with the swap as prefix.
func (s *outboundSwap) Debugf(format string, args ...interface{}) {
	log.Debugf(
		"Swap %v/%d: "+format,
		append(
			[]interface{}{s.req.Sender, s.req.Nonce}, args...,
		)...,
	)
}

// Infof logs an info message with the swap as prefix.
func (s *outboundSwap) Infof(format string, args ...interface{}) {
	log.Infof(
		"Swap %v/%d: "+format,
		append(
			[]interface{}{s.req.Sender, s.req.Nonce}, args...,
		)...,
	)
}

// Swap runs the outbound path of a swap: it pulls the input from the sender,
// trades it into the bridge asset and sends the proceeds to the agent of the
// target chain along with the payload. The call is atomic. If any step fails
// nothing moves and the error is returned.
func (a *Agent) Swap(ctx context.Context, req *SwapRequest) (*Transfer,
	error) {

	route, err := a.validateRequest(req)
	if err != nil {
		return nil, err
	}

	var transfer *Transfer
	err = a.cfg.Ledger.Atomic(func(tx *ledger.Tx) error {
		c := takeCustody(
			tx, a.cfg.Address, ledger.NativeAsset,
			a.cfg.WrappedNative, a.cfg.BridgeAsset,
			sourceAsset(req),
		)

		s := a.newOutboundSwap(tx, req, route)
		err := s.SendEvent(ctx, OnSwapRequested, nil)
		if err != nil {
			return err
		}

		switch s.CurrentState() {
		case TransferRequested:

		case OriginTradeFailed:
			return fmt.Errorf("%w: %v", ErrTradeFailed,
				s.outcome.Err)

		default:
			if s.LastActionError != nil {
				return s.LastActionError
			}

			return fmt.Errorf("swap ended in state %v",
				s.CurrentState())
		}

		if err := c.verify(); err != nil {
			return err
		}

		transfer = s.transfer
		s.Infof("Sent %v of bridge asset to %v as %v",
			transfer.BridgeAmount, req.TargetChain,
			transfer.ID.Short())

		if a.cfg.Notifier != nil {
			tx.OnCommit(func() {
				a.cfg.Notifier.NotifyTransfer(transfer)
			})
		}

		return nil
	})
	if err != nil {
		log.Debugf("Swap %v/%d reverted: %v", req.Sender, req.Nonce,
			err)

		return nil, err
	}

	return transfer, nil
}

// sourceAsset returns the ledger asset the sender pays the input in.
func sourceAsset(req *SwapRequest) common.Address {
	if req.LegKind == payload.LegKindNative {
		return ledger.NativeAsset
	}

	return req.Path[PathSource]
}
