package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/transport"
	"github.com/lightningnetwork/lnd/ticker"
)

// DefaultPollInterval is how often the relayer looks for new messages.
const DefaultPollInterval = 2 * time.Second

// Source lists the messages waiting to be redeemed on a chain.
type Source interface {
	// Pending returns the unredeemed messages addressed to chain.
	Pending(chain transport.ChainID) []*transport.AttestedMessage
}

// Config contains everything the relayer needs.
type Config struct {
	// Settler is the agent messages are submitted to.
	Settler Settler

	// Source is where messages are picked up.
	Source Source

	// Caller is the account submitting messages. It receives the relayer
	// fee.
	Caller common.Address

	// WrappedNative is the wrapped native asset of the chain, used to
	// pick the entry point of V2 payloads.
	WrappedNative common.Address

	// Checkpoint records handled messages.
	Checkpoint *Checkpoint

	// Ticker drives the polling. A ticker with DefaultPollInterval is
	// used if it is nil.
	Ticker ticker.Ticker
}

// Relayer submits the messages addressed to one agent.
type Relayer struct {
	cfg *Config
}

// New creates a relayer.
func New(cfg *Config) (*Relayer, error) {
	switch {
	case cfg.Settler == nil:
		return nil, errors.New("no settler")

	case cfg.Source == nil:
		return nil, errors.New("no message source")

	case cfg.Checkpoint == nil:
		return nil, errors.New("no checkpoint")

	case cfg.Caller == (common.Address{}):
		return nil, errors.New("no caller")
	}

	if cfg.Ticker == nil {
		cfg.Ticker = ticker.New(DefaultPollInterval)
	}

	return &Relayer{
		cfg: cfg,
	}, nil
}

// Run polls for messages until the context is canceled.
func (r *Relayer) Run(ctx context.Context) error {
	r.cfg.Ticker.Resume()
	defer r.cfg.Ticker.Stop()

	log.Infof("Relaying messages to %v on %v", r.cfg.Settler.Address(),
		r.cfg.Settler.ChainID())

	for {
		select {
		case <-r.cfg.Ticker.Ticks():
			n, err := r.Poll(ctx)
			if err != nil {
				log.Errorf("Poll failed: %v", err)
				continue
			}
			if n > 0 {
				log.Debugf("Handled %d messages", n)
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// Poll submits every pending message addressed to the agent that is not in
// the checkpoint yet. It returns the number of messages handled for good.
// Messages failing for a reason that may pass are left for the next poll.
func (r *Relayer) Poll(ctx context.Context) (int, error) {
	chain := r.cfg.Settler.ChainID()
	agent := transport.AddressToBytes32(r.cfg.Settler.Address())

	var handled int
	for _, msg := range r.cfg.Source.Pending(chain) {
		if ctx.Err() != nil {
			return handled, ctx.Err()
		}

		env, err := msg.Envelope()
		if err != nil || env.To != agent {
			continue
		}

		id := msg.ID()
		record, err := r.cfg.Checkpoint.Get(chain, id)
		if err != nil {
			return handled, err
		}
		if record != nil {
			continue
		}

		status, err := r.relay(ctx, msg, env)
		if err != nil {
			log.Warnf("Message %v: will retry: %v", id.Short(), err)
			continue
		}

		err = r.cfg.Checkpoint.Put(chain, id, status)
		if err != nil {
			return handled, fmt.Errorf("unable to checkpoint "+
				"%v: %w", id, err)
		}
		handled++
	}

	return handled, nil
}

// relay submits one message. A nil error means the message is done with.
func (r *Relayer) relay(ctx context.Context, msg *transport.AttestedMessage,
	env *transport.Envelope) (Status, error) {

	id := msg.ID()

	entry, err := SelectEntryPoint(
		r.cfg.Settler.Codec(), r.cfg.WrappedNative, env.Payload,
	)
	if err != nil {
		log.Errorf("Message %v: rejecting payload: %v", id.Short(),
			err)

		return StatusRejected, nil
	}

	log.Debugf("Message %v: submitting via %v", id.Short(), entry)

	result, err := entry.submit(ctx, r.cfg.Settler, r.cfg.Caller, msg)
	switch {
	case err == nil:

	case errors.Is(err, transport.ErrAlreadyRedeemed):
		log.Infof("Message %v: redeemed by someone else", id.Short())
		return StatusRedeemedElsewhere, nil

	case permanent(err):
		log.Errorf("Message %v: rejected: %v", id.Short(), err)
		return StatusRejected, nil

	default:
		return 0, err
	}

	if log.Level() <= btclog.LevelTrace {
		log.Tracef("Message %v: %v", id.Short(), spew.Sdump(result))
	}

	if result.Outcome == settlement.OutcomeRefunded {
		log.Infof("Message %v: refunded %v to %v: %v", id.Short(),
			result.Amount, result.Recipient, result.TradeErr)

		return StatusRefunded, nil
	}

	log.Infof("Message %v: delivered %v to %v", id.Short(), result.Amount,
		result.Recipient)

	return StatusDelivered, nil
}

// permanent returns true for errors no retry can fix.
func permanent(err error) bool {
	for _, target := range []error{
		settlement.ErrMalformedPayload,
		settlement.ErrPayloadMismatch,
		payload.ErrMalformedPayload,
		transport.ErrBadAttestation,
		transport.ErrNotRecipient,
		transport.ErrWrongChain,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
