package swapd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	alice = "0x00000000000000000000000000000000000a11ce"
	bob   = "0x0000000000000000000000000000000000000b0b"
)

// newTestConfig returns a valid config keeping all data in a temporary
// directory.
func newTestConfig(t *testing.T) *Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.HighwayDir = t.TempDir()
	cfg.PollInterval = 10 * time.Millisecond
	require.NoError(t, Validate(&cfg))

	return &cfg
}

type daemonTest struct {
	t      *testing.T
	daemon *Daemon
	url    string
}

func newDaemonTest(t *testing.T, cfg *Config) *daemonTest {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	daemon := New(cfg, NewListenerCfg(cfg, lis))
	require.NoError(t, daemon.Start())

	t.Cleanup(func() {
		daemon.Stop()

		select {
		case err := <-daemon.ErrChan:
			require.NoError(t, err)

		case <-time.After(10 * time.Second):
			t.Fatal("daemon did not stop")
		}
	})

	return &daemonTest{
		t:      t,
		daemon: daemon,
		url:    fmt.Sprintf("http://%v", daemon.Addr()),
	}
}

// call sends a request with a JSON body and decodes the JSON response into
// resp if it is set. It returns the status code.
func (d *daemonTest) call(method, path string, body,
	resp interface{}) int {

	t := d.t
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, d.url+path, reqBody)
	require.NoError(t, err)

	httpResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer httpResp.Body.Close()

	if resp != nil && httpResp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(httpResp.Body).Decode(resp))
	}

	return httpResp.StatusCode
}

func (d *daemonTest) balance(chain uint16, account string) *BalanceResponse {
	var resp BalanceResponse
	path := fmt.Sprintf("/v1/balances/%d/%s", chain, account)
	status := d.call(http.MethodGet, path, nil, &resp)
	require.Equal(d.t, http.StatusOK, status)

	return &resp
}

// TestDaemonSwap tests a swap through the HTTP API from funding the sender
// to the settlement showing up in the journal and the metrics.
func TestDaemonSwap(t *testing.T) {
	d := newDaemonTest(t, newTestConfig(t))

	var info InfoResponse
	require.Equal(t, http.StatusOK, d.call(
		http.MethodGet, "/v1/info", nil, &info,
	))
	require.EqualValues(t, 3, info.PayloadVersion)
	require.Len(t, info.Chains, 2)
	require.Equal(t, "1000", info.Chains[0].NativeReserve)

	status := d.call(http.MethodPost, "/v1/faucet", &FaucetRequest{
		Chain:   2,
		Account: alice,
		Amount:  "10",
	}, nil)
	require.Equal(t, http.StatusNoContent, status)
	require.Equal(t, "10", d.balance(2, alice).Native)

	var quote QuoteResponse
	status = d.call(http.MethodPost, "/v1/quote", &QuoteRequest{
		From:       2,
		Mode:       "exact_in",
		Amount:     "1",
		RelayerFee: "0.01",
	}, &quote)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "1", quote.AmountIn)

	var swap SwapStatus
	status = d.call(http.MethodPost, "/v1/swaps", &SwapRequest{
		From:        2,
		Sender:      alice,
		Recipient:   bob,
		Mode:        "exact_in",
		Amount:      "1",
		RelayerFee:  "0.01",
		SlippageBps: 100,
		Wait:        true,
	}, &swap)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Delivered", swap.State)
	require.Equal(t, quote.AmountOut, swap.AmountOut)
	require.EqualValues(t, 6, swap.TargetChain)
	require.NotEmpty(t, swap.Path)

	require.Equal(t, "9", d.balance(2, alice).Native)
	require.Equal(t, quote.AmountOut, d.balance(6, bob).Native)
	require.Equal(t, "0.01", d.balance(6, info.Relayer).Bridge)

	var swaps SwapsResponse
	require.Equal(t, http.StatusOK, d.call(
		http.MethodGet, "/v1/swaps", nil, &swaps,
	))
	require.Len(t, swaps.Swaps, 1)
	require.Equal(t, swap.ID, swaps.Swaps[0].ID)

	var fetched SwapStatus
	require.Equal(t, http.StatusOK, d.call(
		http.MethodGet, "/v1/swaps/"+swap.ID, nil, &fetched,
	))
	require.Equal(t, swap, fetched)

	// The metrics count the settlement in their own goroutine.
	require.Eventually(t, func() bool {
		metrics := d.metrics()

		return strings.Contains(
			metrics, "highway_settlement_results_total",
		) && strings.Contains(
			metrics, "highway_relayer_handled_messages",
		)
	}, 5*time.Second, 10*time.Millisecond)
}

// metrics returns the exposition of the metrics endpoint.
func (d *daemonTest) metrics() string {
	resp, err := http.Get(d.url + "/metrics")
	require.NoError(d.t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(d.t, err)

	return string(body)
}

// TestDaemonErrors tests the status codes of failing requests.
func TestDaemonErrors(t *testing.T) {
	d := newDaemonTest(t, newTestConfig(t))

	var errResp ErrorResponse

	// The sender has no funds, so the origin leg fails and nothing is
	// journaled.
	status := d.call(http.MethodPost, "/v1/swaps", &SwapRequest{
		From:      2,
		Sender:    alice,
		Recipient: bob,
		Mode:      "exact_in",
		Amount:    "1",
	}, &errResp)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.NotEmpty(t, errResp.Error)

	status = d.call(http.MethodPost, "/v1/quote", &QuoteRequest{
		From:   2,
		Mode:   "sideways",
		Amount: "1",
	}, &errResp)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, errResp.Error, "sideways")

	status = d.call(http.MethodPost, "/v1/quote", &QuoteRequest{
		From:   9,
		Mode:   "exact_in",
		Amount: "1",
	}, &errResp)
	require.Equal(t, http.StatusBadRequest, status)

	status = d.call(
		http.MethodGet, "/v1/swaps/"+strings.Repeat("00", 32), nil,
		&errResp,
	)
	require.Equal(t, http.StatusNotFound, status)

	status = d.call(http.MethodGet, "/v1/swaps/xyz", nil, &errResp)
	require.Equal(t, http.StatusBadRequest, status)

	status = d.call(http.MethodPost, "/v1/faucet", &FaucetRequest{
		Chain:   2,
		Account: alice,
		Amount:  "1000000",
	}, &errResp)
	require.Equal(t, http.StatusBadRequest, status)

	var swaps SwapsResponse
	require.Equal(t, http.StatusOK, d.call(
		http.MethodGet, "/v1/swaps", nil, &swaps,
	))
	require.Empty(t, swaps.Swaps)
}

// TestDaemonStartOnce tests that a daemon cannot be started twice.
func TestDaemonStartOnce(t *testing.T) {
	d := newDaemonTest(t, newTestConfig(t))
	require.ErrorIs(t, d.daemon.Start(), errOnlyStartOnce)
}
