package swapd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/highwayswap/highway"
	"github.com/highwayswap/highway/devnet"
	"github.com/highwayswap/highway/ledger"
	"github.com/highwayswap/highway/settledb"
	"github.com/highwayswap/highway/settlement"
	"github.com/highwayswap/highway/transport"
	"github.com/highwayswap/highway/venue"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// maxBodySize limits the size of request bodies.
	maxBodySize = 1 << 16

	// requestTimeout bounds every request but waiting swaps.
	requestTimeout = 30 * time.Second
)

// apiServer serves the HTTP API of the daemon.
type apiServer struct {
	client      *highway.Client
	network     *devnet.Network
	relayer     common.Address
	faucetLimit *uint256.Int
}

// newRouter returns the routes of the HTTP API.
func newRouter(s *apiServer, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/v1/info", s.info)
	r.Get("/v1/balances/{chain}/{account}", s.balance)
	r.Post("/v1/faucet", s.faucet)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/v1/quote", s.quote)
		r.Get("/v1/swaps", s.listSwaps)
		r.Get("/v1/swaps/{id}", s.getSwap)
	})

	// Swaps may wait for their settlement, which is bounded by the expiry
	// of the swap rather than the request timeout.
	r.Post("/v1/swaps", s.swap)

	r.Handle("/metrics", promhttp.HandlerFor(
		registry, promhttp.HandlerOpts{},
	))

	return r
}

// logRequests logs every request with its status and duration.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Debugf("%v %v %d %d bytes in %v (%v)", r.Method,
			r.URL.Path, ww.Status(), ww.BytesWritten(),
			time.Since(start), r.UserAgent())
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Unable to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, &ErrorResponse{Error: err.Error()})
}

// errorStatus maps an error to the status code it is returned with.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, settledb.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, highway.ErrInvalidAmount),
		errors.Is(err, settlement.ErrInvalidRequest),
		errors.Is(err, devnet.ErrUnknownChain):

		return http.StatusBadRequest

	case errors.Is(err, settlement.ErrTradeFailed),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, venue.ErrInsufficientLiquidity),
		errors.Is(err, highway.ErrNoPool):

		return http.StatusUnprocessableEntity

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request,
	v interface{}) error {

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	return nil
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %v address %q",
			name, s)
	}

	return common.HexToAddress(s), nil
}

func (s *apiServer) info(w http.ResponseWriter, _ *http.Request) {
	resp := &InfoResponse{
		Version:        highway.Version(),
		PayloadVersion: uint8(s.network.Version()),
		FeeTier:        s.network.FeeTier(),
		Relayer:        s.relayer.Hex(),
	}

	for _, chain := range s.network.Chains() {
		cfg := chain.Config
		native, bridge, _ := chain.Pool.Reserves(
			cfg.WrappedNative, cfg.BridgeAsset, s.network.FeeTier(),
		)

		resp.Chains = append(resp.Chains, ChainInfo{
			Name:          cfg.Name,
			ID:            uint16(cfg.ID),
			Agent:         cfg.Agent.Hex(),
			BridgeAsset:   cfg.BridgeAsset.Hex(),
			WrappedNative: cfg.WrappedNative.Hex(),
			NativeReserve: formatAmount(native),
			BridgeReserve: formatAmount(bridge),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) balance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "chain"), 10, 16)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	chain, err := s.network.Chain(transport.ChainID(id))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	cfg := chain.Config
	l := chain.Ledger
	writeJSON(w, http.StatusOK, &BalanceResponse{
		Chain:   uint16(cfg.ID),
		Account: account.Hex(),
		Native: formatAmount(
			l.BalanceOf(ledger.NativeAsset, account),
		),
		Wrapped: formatAmount(l.BalanceOf(cfg.WrappedNative, account)),
		Bridge:  formatAmount(l.BalanceOf(cfg.BridgeAsset, account)),
	})
}

func (s *apiServer) faucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if s.faucetLimit.IsZero() {
		writeError(
			w, http.StatusForbidden, errors.New("faucet disabled"),
		)
		return
	}

	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	amount, err := highway.ParseAmount(req.Amount, highway.DefaultDecimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if amount.IsZero() || amount.Gt(s.faucetLimit) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("faucet "+
			"amount must be between 0 and %v",
			formatAmount(s.faucetLimit)))
		return
	}

	chain := transport.ChainID(req.Chain)
	err = s.network.Fund(chain, account, ledger.NativeAsset, amount)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	log.Infof("Faucet sent %v native on %v to %v", formatAmount(amount),
		chain, account)

	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	mode, err := ParseTradeMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	amount, err := highway.ParseAmount(req.Amount, highway.DefaultDecimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	fee, err := parseOptionalAmount(req.RelayerFee)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	quote, err := s.client.Quote(r.Context(), &highway.QuoteRequest{
		From:       transport.ChainID(req.From),
		Mode:       mode,
		Amount:     amount,
		RelayerFee: fee,
	})
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, &QuoteResponse{
		AmountIn:     formatAmount(quote.AmountIn),
		BridgeAmount: formatAmount(quote.BridgeAmount),
		Released:     formatAmount(quote.Released),
		AmountOut:    formatAmount(quote.AmountOut),
	})
}

// parseSwapRequest converts the API form of a swap request.
func parseSwapRequest(req *SwapRequest) (*highway.SwapRequest, error) {
	sender, err := parseAddress("sender", req.Sender)
	if err != nil {
		return nil, err
	}

	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		return nil, err
	}

	mode, err := ParseTradeMode(req.Mode)
	if err != nil {
		return nil, err
	}

	amount, err := highway.ParseAmount(req.Amount, highway.DefaultDecimals)
	if err != nil {
		return nil, err
	}

	fee, err := parseOptionalAmount(req.RelayerFee)
	if err != nil {
		return nil, err
	}

	return &highway.SwapRequest{
		From:        transport.ChainID(req.From),
		Sender:      sender,
		Recipient:   recipient,
		Mode:        mode,
		Amount:      amount,
		RelayerFee:  fee,
		SlippageBps: req.SlippageBps,
		Expiry:      time.Duration(req.ExpirySeconds) * time.Second,
	}, nil
}

func (s *apiServer) swap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	swapReq, err := parseSwapRequest(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	if !req.Wait {
		transfer, err := s.client.Initiate(ctx, swapReq)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}

		writeJSON(w, http.StatusAccepted, marshalSwap(&highway.SwapInfo{
			ID:       transfer.ID,
			State:    highway.StateInFlight,
			Transfer: transfer,
		}))

		return
	}

	expiry := swapReq.Expiry
	if expiry == 0 {
		expiry = highway.DefaultExpiry
	}
	ctx, cancel := context.WithTimeout(ctx, expiry)
	defer cancel()

	info, err := s.client.Swap(ctx, swapReq)
	switch {
	case info != nil && info.State == highway.StateFailed:
		writeError(w, errorStatus(err), err)

	// The swap was sent but did not settle in time. It is still reported
	// so the caller can follow it.
	case err != nil && info != nil && info.Transfer != nil:
		writeJSON(w, http.StatusAccepted, marshalSwap(info))

	case err != nil:
		writeError(w, errorStatus(err), err)

	default:
		writeJSON(w, http.StatusOK, marshalSwap(info))
	}
}

func (s *apiServer) listSwaps(w http.ResponseWriter, r *http.Request) {
	swaps, err := s.client.FetchSwaps(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	resp := &SwapsResponse{
		Swaps: make([]*SwapStatus, 0, len(swaps)),
	}
	for _, swap := range swaps {
		resp.Swaps = append(resp.Swaps, marshalSwap(swap))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) getSwap(w http.ResponseWriter, r *http.Request) {
	id, err := transport.ParseMessageID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	swap, err := s.client.FetchSwap(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, marshalSwap(swap))
}
