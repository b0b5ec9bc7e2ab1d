package swapd

import (
	"fmt"
	"strings"

	"github.com/highwayswap/highway"
	"github.com/highwayswap/highway/fsm"
	"github.com/highwayswap/highway/payload"
	"github.com/holiman/uint256"
)

// The types below are the JSON bodies of the HTTP API. Amounts are decimal
// strings in whole units of the asset, so "1.5" is one and a half.

// ChainInfo describes one chain of the network.
type ChainInfo struct {
	Name          string `json:"name"`
	ID            uint16 `json:"id"`
	Agent         string `json:"agent"`
	BridgeAsset   string `json:"bridge_asset"`
	WrappedNative string `json:"wrapped_native"`
	NativeReserve string `json:"native_reserve"`
	BridgeReserve string `json:"bridge_reserve"`
}

// InfoResponse is returned by GET /v1/info.
type InfoResponse struct {
	Version        string      `json:"version"`
	PayloadVersion uint8       `json:"payload_version"`
	FeeTier        uint32      `json:"fee_tier"`
	Relayer        string      `json:"relayer"`
	Chains         []ChainInfo `json:"chains"`
}

// QuoteRequest is the body of POST /v1/quote.
type QuoteRequest struct {
	From       uint16 `json:"from"`
	Mode       string `json:"mode"`
	Amount     string `json:"amount"`
	RelayerFee string `json:"relayer_fee"`
}

// QuoteResponse is returned by POST /v1/quote.
type QuoteResponse struct {
	AmountIn     string `json:"amount_in"`
	BridgeAmount string `json:"bridge_amount"`
	Released     string `json:"released"`
	AmountOut    string `json:"amount_out"`
}

// SwapRequest is the body of POST /v1/swaps. If Wait is set the call only
// returns once the swap settled.
type SwapRequest struct {
	From          uint16 `json:"from"`
	Sender        string `json:"sender"`
	Recipient     string `json:"recipient"`
	Mode          string `json:"mode"`
	Amount        string `json:"amount"`
	RelayerFee    string `json:"relayer_fee"`
	SlippageBps   uint32 `json:"slippage_bps"`
	ExpirySeconds uint32 `json:"expiry_seconds"`
	Wait          bool   `json:"wait"`
}

// SwapStatus is the state of one swap.
type SwapStatus struct {
	ID           string   `json:"id"`
	State        string   `json:"state"`
	SourceChain  uint16   `json:"source_chain"`
	TargetChain  uint16   `json:"target_chain"`
	Sender       string   `json:"sender"`
	Recipient    string   `json:"recipient"`
	AmountIn     string   `json:"amount_in"`
	Refunded     string   `json:"refunded"`
	BridgeAmount string   `json:"bridge_amount"`
	RelayerFee   string   `json:"relayer_fee"`
	Asset        string   `json:"asset,omitempty"`
	AmountOut    string   `json:"amount_out,omitempty"`
	Change       string   `json:"change,omitempty"`
	FeePaid      string   `json:"fee_paid,omitempty"`
	TradeError   string   `json:"trade_error,omitempty"`
	Path         []string `json:"path,omitempty"`
}

// SwapsResponse is returned by GET /v1/swaps.
type SwapsResponse struct {
	Swaps []*SwapStatus `json:"swaps"`
}

// FaucetRequest is the body of POST /v1/faucet.
type FaucetRequest struct {
	Chain   uint16 `json:"chain"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// BalanceResponse is returned by GET /v1/balances/{chain}/{account}.
type BalanceResponse struct {
	Chain   uint16 `json:"chain"`
	Account string `json:"account"`
	Native  string `json:"native"`
	Wrapped string `json:"wrapped"`
	Bridge  string `json:"bridge"`
}

// ErrorResponse is returned with every non 2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ParseTradeMode parses exact_in or exact_out.
func ParseTradeMode(s string) (payload.TradeMode, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "")) {
	case "exactin", "in":
		return payload.ExactIn, nil

	case "exactout", "out":
		return payload.ExactOut, nil

	default:
		return 0, fmt.Errorf("unknown trade mode %q", s)
	}
}

// parseOptionalAmount parses an amount that defaults to zero.
func parseOptionalAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}

	return highway.ParseAmount(s, highway.DefaultDecimals)
}

func formatAmount(amount *uint256.Int) string {
	return highway.FormatAmount(amount, highway.DefaultDecimals)
}

// marshalSwap converts a swap into its API form.
func marshalSwap(info *highway.SwapInfo) *SwapStatus {
	status := &SwapStatus{
		ID:    info.ID.String(),
		State: info.State.String(),
	}

	if t := info.Transfer; t != nil {
		recipient := t.Recipient.String()
		if addr, ok := t.Recipient.Address(); ok {
			recipient = addr.Hex()
		}

		status.SourceChain = uint16(t.SourceChain)
		status.TargetChain = uint16(t.TargetChain)
		status.Sender = t.Sender.Hex()
		status.Recipient = recipient
		status.AmountIn = formatAmount(t.AmountIn)
		status.Refunded = formatAmount(t.Refunded)
		status.BridgeAmount = formatAmount(t.BridgeAmount)
		status.RelayerFee = formatAmount(t.RelayerFee)
	}

	if r := info.Result; r != nil {
		status.Asset = r.Asset.Hex()
		status.AmountOut = formatAmount(r.Amount)
		status.Change = formatAmount(r.Change)
		status.FeePaid = formatAmount(r.FeePaid)
		status.Path = marshalPath(r.Path)

		if r.TradeErr != nil {
			status.TradeError = r.TradeErr.Error()
		}
	}

	return status
}

func marshalPath(path []fsm.StateType) []string {
	states := make([]string, 0, len(path))
	for _, state := range path {
		states = append(states, string(state))
	}

	return states
}
