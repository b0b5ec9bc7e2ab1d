package settlement

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/highwayswap/highway/fsm"
	"github.com/highwayswap/highway/ledger"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/transport"
	"github.com/highwayswap/highway/venue"
	"github.com/holiman/uint256"
)

// Inbound states.
var (
	// MessageRedeemed is the state where the message is redeemed and the
	// released bridge asset is measured.
	MessageRedeemed = fsm.StateType("MessageRedeemed")

	// PayloadValidated is the state where the payload is decoded and
	// checked against the entry point.
	PayloadValidated = fsm.StateType("PayloadValidated")

	// DestinationTradeAttempted is the state where the destination leg is
	// traded.
	DestinationTradeAttempted = fsm.StateType("DestinationTradeAttempted")

	// DestinationTradeSucceeded is the state after a successful
	// destination leg.
	DestinationTradeSucceeded = fsm.StateType("DestinationTradeSucceeded")

	// DestinationTradeFailed is the state where the bridge asset is sent
	// to the recipient instead.
	DestinationTradeFailed = fsm.StateType("DestinationTradeFailed")

	// Delivered is the final state when the recipient got the requested
	// asset.
	Delivered = fsm.StateType("Delivered")

	// Refunded is the final state when the recipient got the bridge asset
	// instead.
	Refunded = fsm.StateType("Refunded")

	// InboundAborted is the final state of a settlement that failed. The
	// call is reverted.
	InboundAborted = fsm.StateType("InboundAborted")
)

// Inbound events.
var (
	// OnMessageReceived starts the inbound machine.
	OnMessageReceived = fsm.EventType("OnMessageReceived")

	// OnRedeemed is sent once the message is redeemed.
	OnRedeemed = fsm.EventType("OnRedeemed")

	// OnPayloadValid is sent once the payload matched the entry point.
	OnPayloadValid = fsm.EventType("OnPayloadValid")

	// OnBridgeAssetDelivered is sent when a recipient-only payload
	// delivered the bridge asset without a trade.
	OnBridgeAssetDelivered = fsm.EventType("OnBridgeAssetDelivered")

	// OnDestinationTradeSucceeded is sent when the destination leg traded.
	OnDestinationTradeSucceeded = fsm.EventType(
		"OnDestinationTradeSucceeded",
	)

	// OnDestinationTradeFailed is sent when the destination leg failed.
	OnDestinationTradeFailed = fsm.EventType("OnDestinationTradeFailed")

	// OnDelivered is sent once the output reached the recipient.
	OnDelivered = fsm.EventType("OnDelivered")

	// OnRefunded is sent once the bridge asset reached the recipient.
	OnRefunded = fsm.EventType("OnRefunded")
)

// Outcome is the final result of an inbound settlement.
type Outcome uint8

const (
	// OutcomeDelivered means the recipient got the requested asset.
	OutcomeDelivered Outcome = iota + 1

	// OutcomeRefunded means the recipient got the bridge asset because
	// the destination leg failed.
	OutcomeRefunded
)

// String returns the name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"

	case OutcomeRefunded:
		return "refunded"

	default:
		return "unknown"
	}
}

// Result describes a committed inbound settlement.
type Result struct {
	// MessageID is the id of the redeemed message.
	MessageID transport.MessageID

	// FromChain is the chain the swap came from.
	FromChain transport.ChainID

	// Outcome tells whether the recipient got the requested asset or the
	// bridge asset.
	Outcome Outcome

	// Recipient received the output.
	Recipient common.Address

	// Asset is the asset delivered. It is the zero address for the native
	// asset.
	Asset common.Address

	// Caller is whoever submitted the message.
	Caller common.Address

	// Amount is the amount delivered.
	Amount *uint256.Int

	// Change is the unused bridge asset returned to the recipient along
	// with an exact output delivery.
	Change *uint256.Int

	// Released is the bridge asset amount the redemption credited to the
	// agent.
	Released *uint256.Int

	// FeePaid is the relayer fee paid for the message, by the transport
	// or by the agent.
	FeePaid *uint256.Int

	// TradeErr is the reason the destination leg failed.
	TradeErr error

	// Path lists the states the settlement went through.
	Path []fsm.StateType

	// Log is the SwapResult event of the settlement.
	Log *types.Log
}

// Success returns the success flag of the settlement event.
func (r *Result) Success() uint8 {
	if r.Outcome == OutcomeDelivered {
		return 1
	}

	return 0
}

// entryPoint is one of the inbound call sites.
type entryPoint struct {
	name          string
	recipientOnly bool
	mode          payload.TradeMode
	kind          payload.LegKind
}

var (
	entryExactIn = entryPoint{
		name: "RecvAndSwapExactIn",
		mode: payload.ExactIn,
		kind: payload.LegKindToken,
	}
	entryExactNativeIn = entryPoint{
		name: "RecvAndSwapExactNativeIn",
		mode: payload.ExactIn,
		kind: payload.LegKindNative,
	}
	entryExactOut = entryPoint{
		name: "RecvAndSwapExactOut",
		mode: payload.ExactOut,
		kind: payload.LegKindToken,
	}
	entryExactNativeOut = entryPoint{
		name: "RecvAndSwapExactNativeOut",
		mode: payload.ExactOut,
		kind: payload.LegKindNative,
	}
	entryDeliver = entryPoint{
		name:          "RecvAndDeliver",
		recipientOnly: true,
	}
)

// inboundSettlement is one inbound call.
type inboundSettlement struct {
	*fsm.StateMachine

	agent  *Agent
	tx     *ledger.Tx
	entry  entryPoint
	caller common.Address
	msg    *transport.AttestedMessage
	id     transport.MessageID

	redemption *transport.Redemption
	released   *uint256.Int
	tradable   *uint256.Int
	feePaid    *uint256.Int
	payload    *payload.Payload
	recipient  common.Address
	outcome    venue.Outcome
	result     *Result
}

// newInboundSettlement creates the state machine of one inbound call.
func (a *Agent) newInboundSettlement(tx *ledger.Tx, entry entryPoint,
	caller common.Address,
	msg *transport.AttestedMessage) *inboundSettlement {

	s := &inboundSettlement{
		agent:  a,
		tx:     tx,
		entry:  entry,
		caller: caller,
		msg:    msg,
		id:     msg.ID(),
	}
	s.StateMachine = fsm.NewStateMachine(
		s.inboundStates(), defaultObserverSize,
	)
	s.ActionEntryFunc = s.logTransition

	return s
}

// InboundStates returns the states of the inbound machine.
func InboundStates() fsm.States {
	return (&inboundSettlement{}).inboundStates()
}

func (s *inboundSettlement) inboundStates() fsm.States {
	return fsm.States{
		fsm.EmptyState: fsm.State{
			Transitions: fsm.Transitions{
				OnMessageReceived: MessageRedeemed,
			},
		},
		MessageRedeemed: fsm.State{
			Transitions: fsm.Transitions{
				OnRedeemed:  PayloadValidated,
				fsm.OnError: InboundAborted,
			},
			Action: s.redeemAction,
		},
		PayloadValidated: fsm.State{
			Transitions: fsm.Transitions{
				OnPayloadValid:         DestinationTradeAttempted,
				OnBridgeAssetDelivered: Delivered,
				fsm.OnError:            InboundAborted,
			},
			Action: s.validatePayloadAction,
		},
		DestinationTradeAttempted: fsm.State{
			Transitions: fsm.Transitions{
				OnDestinationTradeSucceeded: DestinationTradeSucceeded,
				OnDestinationTradeFailed:    DestinationTradeFailed,
				fsm.OnError:                 InboundAborted,
			},
			Action: s.destinationTradeAction,
		},
		DestinationTradeSucceeded: fsm.State{
			Transitions: fsm.Transitions{
				OnDelivered: Delivered,
				fsm.OnError: InboundAborted,
			},
			Action: s.tradeSucceededAction,
		},
		DestinationTradeFailed: fsm.State{
			Transitions: fsm.Transitions{
				OnRefunded:  Refunded,
				fsm.OnError: InboundAborted,
			},
			Action: s.refundAction,
		},
		Delivered: fsm.State{
			Action: fsm.NoOpAction,
		},
		Refunded: fsm.State{
			Action: fsm.NoOpAction,
		},
		InboundAborted: fsm.State{
			Action: fsm.NoOpAction,
		},
	}
}

// redeemAction redeems the message. The released amount is what the
// redemption credited to the agent, not what the message claims.
func (s *inboundSettlement) redeemAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	cfg := s.agent.cfg
	before := s.tx.BalanceOf(cfg.BridgeAsset, cfg.Address)

	redemption, err := cfg.Transport.RedeemWithPayload(
		ctx, s.tx, cfg.Address, s.msg, s.caller,
	)
	if err != nil {
		return s.HandleError(err)
	}
	if redemption.Asset != cfg.BridgeAsset {
		return s.HandleError(fmt.Errorf("%w: message released %v, "+
			"not the bridge asset", ErrPayloadMismatch,
			redemption.Asset))
	}

	released, err := balanceDelta(
		before, s.tx.BalanceOf(cfg.BridgeAsset, cfg.Address),
	)
	if err != nil {
		return s.HandleError(err)
	}

	s.redemption = redemption
	s.released = released
	s.tradable = new(uint256.Int).Set(released)
	s.feePaid = new(uint256.Int).Set(redemption.FeePaid)

	return OnRedeemed
}

// mismatch returns an ErrPayloadMismatch with the given detail.
func mismatch(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPayloadMismatch,
		fmt.Sprintf(format, args...))
}

// decodePayload decodes the payload and checks that its variant is the one
// the entry point expects.
func (s *inboundSettlement) decodePayload() (*payload.Payload, error) {
	codec := s.agent.codec
	raw := s.redemption.Payload

	p, err := codec.Decode(raw)
	if err != nil {
		return nil, err
	}

	switch {
	case s.entry.recipientOnly && !p.RecipientOnly():
		return nil, mismatch("%d byte payload at %v, want %d",
			len(raw), s.entry.name, payload.RecipientOnlyLength)

	case !s.entry.recipientOnly && p.RecipientOnly():
		return nil, mismatch("%d byte payload at %v, want %d",
			len(raw), s.entry.name, codec.FullLength())
	}

	return p, nil
}

// checkInstructions checks the swap instructions against the entry point
// and the local assets.
func (s *inboundSettlement) checkInstructions(
	instructions *payload.Instructions) error {

	cfg := s.agent.cfg

	wantKind := s.entry.kind
	if cfg.Version == payload.V2 {
		wantKind = payload.LegKindUnspecified
	}

	switch {
	case instructions.TradeMode != s.entry.mode:
		return mismatch("trade mode %v at %v", instructions.TradeMode,
			s.entry.name)

	case instructions.LegKind != wantKind:
		return mismatch("leg kind %v at %v", instructions.LegKind,
			s.entry.name)

	case instructions.PoolAsset != cfg.BridgeAsset:
		return mismatch("destination leg sells %v, not the bridge "+
			"asset", instructions.PoolAsset)

	case instructions.Amount.IsZero():
		return mismatch("zero destination amount")
	}

	out := instructions.AssetOut
	if s.entry.kind == payload.LegKindNative {
		if cfg.WrappedNative == (common.Address{}) ||
			out != cfg.WrappedNative {

			return mismatch("native leg buys %v, not the wrapped "+
				"native asset", out)
		}

		return nil
	}

	if out == (common.Address{}) || out == cfg.BridgeAsset {
		return mismatch("token leg buys %v", out)
	}

	return nil
}

// payRelayer pays the relayer fee out of the released amount. Only agents
// whose transport leaves the fee to them do so.
func (s *inboundSettlement) payRelayer() error {
	cfg := s.agent.cfg
	if cfg.Version != payload.V2 || s.redemption.RelayerFee.IsZero() {
		return nil
	}

	fee := s.redemption.RelayerFee
	if s.tradable.Lt(fee) {
		return mismatch("relayer fee %v exceeds released %v", fee,
			s.tradable)
	}

	err := s.tx.Transfer(cfg.BridgeAsset, cfg.Address, s.caller, fee)
	if err != nil {
		return err
	}

	s.tradable.Sub(s.tradable, fee)
	s.feePaid.Add(s.feePaid, fee)

	return nil
}

// validatePayloadAction decodes and checks the payload and pays the relayer
// if needed. Recipient-only payloads are delivered right away.
func (s *inboundSettlement) validatePayloadAction(_ context.Context,
	_ fsm.EventContext) fsm.EventType {

	p, err := s.decodePayload()
	if err != nil {
		return s.HandleError(err)
	}

	recipient, ok := p.Recipient.Address()
	if !ok || recipient == (common.Address{}) {
		return s.HandleError(mismatch("recipient %v is not a local "+
			"address", p.Recipient))
	}

	if p.Swap != nil {
		if err := s.checkInstructions(p.Swap); err != nil {
			return s.HandleError(err)
		}
	}

	s.payload = p
	s.recipient = recipient

	if err := s.payRelayer(); err != nil {
		return s.HandleError(err)
	}

	if !s.entry.recipientOnly {
		return OnPayloadValid
	}

	cfg := s.agent.cfg
	err = s.tx.Transfer(
		cfg.BridgeAsset, cfg.Address, recipient, s.tradable,
	)
	if err != nil {
		return s.HandleError(err)
	}
	s.settle(OutcomeDelivered, cfg.BridgeAsset, s.tradable, nil)

	return OnBridgeAssetDelivered
}

// clampDeadline maps a payload deadline onto the venue's deadline range.
func clampDeadline(deadline *uint256.Int) uint64 {
	if !deadline.IsUint64() {
		return math.MaxUint64
	}

	return deadline.Uint64()
}

// destinationTradeAction trades the bridge asset into the requested asset.
// A failed trade is an expected outcome and leads to the refund.
func (s *inboundSettlement) destinationTradeAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	var (
		cfg          = s.agent.cfg
		instructions = s.payload.Swap
		trade        = &venue.Trade{
			AssetIn:   cfg.BridgeAsset,
			AssetOut:  instructions.AssetOut,
			Amount:    s.tradable,
			Limit:     new(uint256.Int).Set(&instructions.Amount),
			PoolFee:   instructions.PoolFee,
			Deadline:  clampDeadline(&instructions.Deadline),
			Recipient: s.recipient,
			Refundee:  s.recipient,
			NativeOut: s.entry.kind == payload.LegKindNative,
		}
	)

	switch s.entry.mode {
	case payload.ExactIn:
		s.outcome = s.agent.adapter.TradeExactIn(ctx, s.tx, trade)

	case payload.ExactOut:
		s.outcome = s.agent.adapter.TradeExactOut(ctx, s.tx, trade)

	default:
		return s.HandleError(fmt.Errorf("no trade at %v",
			s.entry.name))
	}

	if !s.outcome.Ok() {
		s.Infof("Destination trade failed, refunding: %v",
			s.outcome.Err)

		return OnDestinationTradeFailed
	}

	return OnDestinationTradeSucceeded
}

// tradeSucceededAction records the delivery of the requested asset.
func (s *inboundSettlement) tradeSucceededAction(_ context.Context,
	_ fsm.EventContext) fsm.EventType {

	asset := s.payload.Swap.AssetOut
	if s.entry.kind == payload.LegKindNative {
		asset = ledger.NativeAsset
	}

	s.settle(OutcomeDelivered, asset, s.outcome.AmountOut, nil)
	s.result.Change = s.outcome.Refunded

	return OnDelivered
}

// refundAction sends the whole tradable bridge asset amount to the
// recipient.
func (s *inboundSettlement) refundAction(_ context.Context,
	_ fsm.EventContext) fsm.EventType {

	cfg := s.agent.cfg
	err := s.tx.Transfer(
		cfg.BridgeAsset, cfg.Address, s.recipient, s.tradable,
	)
	if err != nil {
		return s.HandleError(err)
	}

	s.settle(OutcomeRefunded, cfg.BridgeAsset, s.tradable, s.outcome.Err)

	return OnRefunded
}

// settle builds the result of the settlement.
func (s *inboundSettlement) settle(outcome Outcome, asset common.Address,
	amount *uint256.Int, tradeErr error) {

	s.result = &Result{
		MessageID: s.id,
		FromChain: s.redemption.FromChain,
		Outcome:   outcome,
		Recipient: s.recipient,
		Asset:     asset,
		Caller:    s.caller,
		Amount:    new(uint256.Int).Set(amount),
		Change:    new(uint256.Int),
		Released:  s.released,
		FeePaid:   s.feePaid,
		TradeErr:  tradeErr,
	}
}

// logTransition logs every transition of the machine.
func (s *inboundSettlement) logTransition(_ context.Context,
	notification fsm.Notification) {

	s.Debugf("Previous: %v, Event: %v, Next: %v",
		notification.PreviousState, notification.Event,
		notification.NextState)
}

// Debugf logs a debug message with the message id as prefix.
func (s *inboundSettlement) Debugf(format string, args ...interface{}) {
	log.Debugf(
		"Settlement %v: "+format,
		append([]interface{}{s.id.Short()}, args...)...,
	)
}

// Infof logs an info message with the message id as prefix.
func (s *inboundSettlement) Infof(format string, args ...interface{}) {
	log.Infof(
		"Settlement %v: "+format,
		append([]interface{}{s.id.Short()}, args...)...,
	)
}

// receive runs the inbound path for one entry point. The call is atomic: it
// either commits with exactly one outcome or reverts, redemption included.
func (a *Agent) receive(ctx context.Context, entry entryPoint,
	caller common.Address, msg *transport.AttestedMessage) (*Result,
	error) {

	if msg == nil {
		return nil, errors.New("no message")
	}

	var result *Result
	err := a.cfg.Ledger.Atomic(func(tx *ledger.Tx) error {
		c := takeCustody(
			tx, a.cfg.Address, ledger.NativeAsset,
			a.cfg.WrappedNative, a.cfg.BridgeAsset,
		)

		s := a.newInboundSettlement(tx, entry, caller, msg)
		err := s.SendEvent(ctx, OnMessageReceived, nil)
		if err != nil {
			return err
		}

		switch s.CurrentState() {
		case Delivered, Refunded:

		default:
			if s.LastActionError != nil {
				return s.LastActionError
			}

			return fmt.Errorf("settlement ended in state %v",
				s.CurrentState())
		}

		if err := c.verify(); err != nil {
			return err
		}

		result = s.result
		result.Path = s.DefaultObserver.StatePath()

		result.Log, err = newSwapResultLog(a.cfg.Address, result)
		if err != nil {
			return err
		}

		s.Infof("%v %v of %v to %v (released %v, fee %v)",
			result.Outcome, result.Amount, result.Asset,
			result.Recipient, result.Released, result.FeePaid)

		if a.cfg.Notifier != nil {
			tx.OnCommit(func() {
				a.cfg.Notifier.NotifyResult(result)
			})
		}

		return nil
	})
	if err != nil {
		log.Debugf("Settlement %v at %v reverted: %v",
			msg.ID().Short(), entry.name, err)

		return nil, err
	}

	return result, nil
}

// RecvAndSwapExactIn settles an exact input token swap.
func (a *Agent) RecvAndSwapExactIn(ctx context.Context, caller common.Address,
	msg *transport.AttestedMessage) (*Result, error) {

	return a.receive(ctx, entryExactIn, caller, msg)
}

// RecvAndSwapExactNativeIn settles an exact input swap into the native asset.
func (a *Agent) RecvAndSwapExactNativeIn(ctx context.Context,
	caller common.Address, msg *transport.AttestedMessage) (*Result,
	error) {

	return a.receive(ctx, entryExactNativeIn, caller, msg)
}

// RecvAndSwapExactOut settles an exact output token swap.
func (a *Agent) RecvAndSwapExactOut(ctx context.Context, caller common.Address,
	msg *transport.AttestedMessage) (*Result, error) {

	return a.receive(ctx, entryExactOut, caller, msg)
}

// RecvAndSwapExactNativeOut settles an exact output swap into the native
// asset.
func (a *Agent) RecvAndSwapExactNativeOut(ctx context.Context,
	caller common.Address, msg *transport.AttestedMessage) (*Result,
	error) {

	return a.receive(ctx, entryExactNativeOut, caller, msg)
}

// RecvAndDeliver settles a recipient-only transfer by handing the bridge
// asset to the recipient.
func (a *Agent) RecvAndDeliver(ctx context.Context, caller common.Address,
	msg *transport.AttestedMessage) (*Result, error) {

	return a.receive(ctx, entryDeliver, caller, msg)
}
