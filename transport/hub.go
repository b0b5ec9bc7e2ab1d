package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/ledger"
	"github.com/holiman/uint256"
)

// canonicalAsset identifies an asset by its home chain and home address.
type canonicalAsset struct {
	token [32]byte
	chain ChainID
}

// localAsset identifies the representation of an asset on one chain.
type localAsset struct {
	chain ChainID
	addr  common.Address
}

// Hub connects the endpoints of all chains. It stands in for the guardian
// network: messages emitted by an endpoint are attested with the hub's key
// and published for relayers to pick up.
type Hub struct {
	attestor *attestor

	mtx        sync.Mutex
	endpoints  map[ChainID]*Endpoint
	canonicals map[localAsset]canonicalAsset
	locals     map[ChainID]map[canonicalAsset]common.Address
	sequences  map[ChainID]uint64
	published  []*AttestedMessage
	redeemed   map[MessageID]struct{}
}

// NewHub creates a hub that attests messages with the given 32 byte key.
func NewHub(key []byte) (*Hub, error) {
	attestor, err := newAttestor(key)
	if err != nil {
		return nil, err
	}

	return &Hub{
		attestor:   attestor,
		endpoints:  make(map[ChainID]*Endpoint),
		canonicals: make(map[localAsset]canonicalAsset),
		locals: make(
			map[ChainID]map[canonicalAsset]common.Address,
		),
		sequences: make(map[ChainID]uint64),
		redeemed:  make(map[MessageID]struct{}),
	}, nil
}

// NewEndpoint attaches a chain to the hub. The endpoint's address holds the
// locked home assets of the chain.
func (h *Hub) NewEndpoint(chain ChainID, addr common.Address,
	feeMode FeeMode) (*Endpoint, error) {

	h.mtx.Lock()
	defer h.mtx.Unlock()

	if _, ok := h.endpoints[chain]; ok {
		return nil, fmt.Errorf("endpoint for %v already exists", chain)
	}

	e := &Endpoint{
		hub:     h,
		chain:   chain,
		addr:    addr,
		feeMode: feeMode,
	}
	h.endpoints[chain] = e

	return e, nil
}

// RegisterAsset registers an asset living on its home chain together with
// its wrapped representations on other chains. Home assets are locked and
// unlocked by the home endpoint, representations are minted and burned.
func (h *Hub) RegisterAsset(home ChainID, homeAddr common.Address,
	wrapped map[ChainID]common.Address) error {

	h.mtx.Lock()
	defer h.mtx.Unlock()

	canonical := canonicalAsset{
		token: AddressToBytes32(homeAddr),
		chain: home,
	}

	all := map[ChainID]common.Address{home: homeAddr}
	for chain, addr := range wrapped {
		if chain == home {
			return fmt.Errorf("wrapped asset on home chain %v",
				chain)
		}
		all[chain] = addr
	}

	for chain, addr := range all {
		local := localAsset{chain: chain, addr: addr}
		if _, ok := h.canonicals[local]; ok {
			return fmt.Errorf("asset %v already registered on %v",
				addr, chain)
		}
	}

	for chain, addr := range all {
		h.canonicals[localAsset{chain: chain, addr: addr}] = canonical

		if _, ok := h.locals[chain]; !ok {
			h.locals[chain] = make(
				map[canonicalAsset]common.Address,
			)
		}
		h.locals[chain][canonical] = addr
	}

	return nil
}

// LocalAsset returns the address of the representation on chain of the
// asset addr living on chain from.
func (h *Hub) LocalAsset(from ChainID, addr common.Address,
	chain ChainID) (common.Address, bool) {

	h.mtx.Lock()
	defer h.mtx.Unlock()

	canonical, ok := h.canonicals[localAsset{chain: from, addr: addr}]
	if !ok {
		return common.Address{}, false
	}

	local, ok := h.locals[chain][canonical]

	return local, ok
}

// Messages returns the messages published after the cursor and the cursor to
// continue from.
func (h *Hub) Messages(cursor int) ([]*AttestedMessage, int) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if cursor < 0 || cursor > len(h.published) {
		cursor = 0
	}

	msgs := make([]*AttestedMessage, 0, len(h.published)-cursor)
	msgs = append(msgs, h.published[cursor:]...)

	return msgs, len(h.published)
}

// Pending returns the published messages addressed to chain that have not
// been redeemed yet.
func (h *Hub) Pending(chain ChainID) []*AttestedMessage {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	var pending []*AttestedMessage
	for _, msg := range h.published {
		if _, ok := h.redeemed[msg.ID()]; ok {
			continue
		}

		env, err := msg.Envelope()
		if err != nil || env.ToChain != chain {
			continue
		}

		pending = append(pending, msg)
	}

	return pending
}

// Redeemed returns true if the message was redeemed.
func (h *Hub) Redeemed(id MessageID) bool {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	_, ok := h.redeemed[id]

	return ok
}

// Verify checks the attestation of a message.
func (h *Hub) Verify(msg *AttestedMessage) error {
	return h.attestor.verify(msg)
}

// nextSequence reserves the next sequence of the emitter chain.
func (h *Hub) nextSequence(tx *ledger.Tx, chain ChainID) uint64 {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	seq := h.sequences[chain]
	h.sequences[chain] = seq + 1

	tx.AddUndo(func() {
		h.mtx.Lock()
		defer h.mtx.Unlock()

		h.sequences[chain] = seq
	})

	return seq
}

// publish makes a message visible to relayers.
func (h *Hub) publish(msg *AttestedMessage) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.published = append(h.published, msg)
}

// markRedeemed records the redemption of a message, failing if it was
// redeemed before.
func (h *Hub) markRedeemed(tx *ledger.Tx, id MessageID) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if _, ok := h.redeemed[id]; ok {
		return fmt.Errorf("%w: %v", ErrAlreadyRedeemed, id)
	}
	h.redeemed[id] = struct{}{}

	tx.AddUndo(func() {
		h.mtx.Lock()
		defer h.mtx.Unlock()

		delete(h.redeemed, id)
	})

	return nil
}

// Endpoint is the transport contract of one chain.
type Endpoint struct {
	hub     *Hub
	chain   ChainID
	addr    common.Address
	feeMode FeeMode
}

// A compile time assertion that Endpoint implements Transport.
var _ Transport = (*Endpoint)(nil)

// ChainID implements Transport.
func (e *Endpoint) ChainID() ChainID {
	return e.chain
}

// FeeMode implements Transport.
func (e *Endpoint) FeeMode() FeeMode {
	return e.feeMode
}

// Address returns the address of the endpoint contract.
func (e *Endpoint) Address() common.Address {
	return e.addr
}

// Hub returns the hub the endpoint is attached to.
func (e *Endpoint) Hub() *Hub {
	return e.hub
}

// TransferWithPayload implements Transport.
func (e *Endpoint) TransferWithPayload(_ context.Context, tx *ledger.Tx,
	sender common.Address, req *TransferRequest) (*TransferReceipt, error) {

	if req.Amount == nil || req.Amount.IsZero() {
		return nil, fmt.Errorf("zero transfer amount")
	}

	fee := req.RelayerFee
	if fee == nil {
		fee = new(uint256.Int)
	}
	if req.Amount.Lt(fee) {
		return nil, fmt.Errorf("%w: fee %v, amount %v",
			ErrFeeExceedsAmount, fee, req.Amount)
	}

	e.hub.mtx.Lock()
	_, targetKnown := e.hub.endpoints[req.TargetChain]
	canonical, assetKnown := e.hub.canonicals[localAsset{
		chain: e.chain,
		addr:  req.Asset,
	}]
	e.hub.mtx.Unlock()

	switch {
	case !targetKnown || req.TargetChain == e.chain:
		return nil, fmt.Errorf("%w: %v", ErrUnknownChain,
			req.TargetChain)

	case !assetKnown:
		return nil, fmt.Errorf("%w: %v on %v", ErrUnknownAsset,
			req.Asset, e.chain)
	}

	// Home assets are locked in the endpoint, representations are
	// burned.
	var err error
	if canonical.chain == e.chain {
		err = tx.Transfer(req.Asset, sender, e.addr, req.Amount)
	} else {
		err = tx.Burn(req.Asset, sender, req.Amount)
	}
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Token:      canonical.token,
		TokenChain: canonical.chain,
		To:         req.TargetRecipient,
		ToChain:    req.TargetChain,
		Payload:    req.Payload,
	}
	env.Amount.Set(req.Amount)
	env.RelayerFee.Set(fee)

	msg := &AttestedMessage{
		Version:      MessageVersion,
		EmitterChain: e.chain,
		Emitter:      AddressToBytes32(e.addr),
		Sequence:     e.hub.nextSequence(tx, e.chain),
		Nonce:        req.Nonce,
		Body:         env.Encode(),
	}
	if err := e.hub.attestor.attest(msg); err != nil {
		return nil, err
	}

	tx.OnCommit(func() {
		e.hub.publish(msg)
	})

	id := msg.ID()
	log.Debugf("[%v] Transfer %v seq=%d to %v: amount=%v fee=%v "+
		"payload=%d bytes", e.chain, id.Short(), msg.Sequence,
		req.TargetChain, req.Amount, fee, len(req.Payload))

	return &TransferReceipt{
		Sequence: msg.Sequence,
		ID:       id,
	}, nil
}

// RedeemWithPayload implements Transport.
func (e *Endpoint) RedeemWithPayload(_ context.Context, tx *ledger.Tx,
	caller common.Address, msg *AttestedMessage,
	feeRecipient common.Address) (*Redemption, error) {

	if msg.Version != MessageVersion {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedMessage,
			msg.Version)
	}
	if err := e.hub.Verify(msg); err != nil {
		return nil, err
	}

	env, err := msg.Envelope()
	if err != nil {
		return nil, err
	}

	if env.ToChain != e.chain {
		return nil, fmt.Errorf("%w: %v", ErrWrongChain, env.ToChain)
	}
	if env.To != AddressToBytes32(caller) {
		return nil, fmt.Errorf("%w: %v", ErrNotRecipient, caller)
	}

	canonical := canonicalAsset{token: env.Token, chain: env.TokenChain}

	e.hub.mtx.Lock()
	emitter, emitterKnown := e.hub.endpoints[msg.EmitterChain]
	asset, assetKnown := e.hub.locals[e.chain][canonical]
	e.hub.mtx.Unlock()

	switch {
	case !emitterKnown || AddressToBytes32(emitter.addr) != msg.Emitter:
		return nil, fmt.Errorf("%w: unknown emitter on %v",
			ErrBadAttestation, msg.EmitterChain)

	case !assetKnown:
		return nil, fmt.Errorf("%w: %x from %v", ErrUnknownAsset,
			env.Token, env.TokenChain)

	case env.Amount.Lt(&env.RelayerFee):
		return nil, fmt.Errorf("%w: fee %v, amount %v",
			ErrFeeExceedsAmount, &env.RelayerFee, &env.Amount)
	}

	id := msg.ID()
	if err := e.hub.markRedeemed(tx, id); err != nil {
		return nil, err
	}

	release := func(to common.Address, amount *uint256.Int) error {
		if amount.IsZero() {
			return nil
		}
		if canonical.chain == e.chain {
			return tx.Transfer(asset, e.addr, to, amount)
		}

		return tx.Mint(asset, to, amount)
	}

	feePaid := new(uint256.Int)
	toCaller := new(uint256.Int).Set(&env.Amount)

	if e.feeMode == FeeModeDeduct && !env.RelayerFee.IsZero() {
		if feeRecipient == (common.Address{}) {
			feeRecipient = caller
		}

		feePaid.Set(&env.RelayerFee)
		toCaller.Sub(toCaller, feePaid)

		if err := release(feeRecipient, feePaid); err != nil {
			return nil, err
		}
	}

	if err := release(caller, toCaller); err != nil {
		return nil, err
	}

	log.Debugf("[%v] Redeemed %v from %v seq=%d: released=%v "+
		"fee_paid=%v", e.chain, id.Short(), msg.EmitterChain,
		msg.Sequence, toCaller, feePaid)

	return &Redemption{
		ID:         id,
		FromChain:  msg.EmitterChain,
		Asset:      asset,
		Amount:     new(uint256.Int).Set(&env.Amount),
		RelayerFee: new(uint256.Int).Set(&env.RelayerFee),
		FeePaid:    feePaid,
		Payload:    env.Payload,
	}, nil
}
