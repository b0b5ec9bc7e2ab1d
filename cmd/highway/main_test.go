package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/highwayswap/highway/payload"
	"github.com/highwayswap/highway/swapd"
	"github.com/stretchr/testify/require"
)

// TestDaemonClient tests that the client decodes responses and turns error
// responses into errors.
func TestDaemonClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/info", func(w http.ResponseWriter,
		r *http.Request) {

		_ = json.NewEncoder(w).Encode(&swapd.InfoResponse{
			Version:        "0.1.0",
			PayloadVersion: 3,
		})
	})
	mux.HandleFunc("/v1/faucet", func(w http.ResponseWriter,
		r *http.Request) {

		var req swapd.FaucetRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err == nil && req.Amount == "1" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(&swapd.ErrorResponse{
			Error: "faucet limit exceeded",
		})
	})
	mux.HandleFunc("/v1/swaps", func(w http.ResponseWriter,
		r *http.Request) {

		w.WriteHeader(http.StatusInternalServerError)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := &daemonClient{
		baseURL: server.URL,
		http:    server.Client(),
	}
	ctx := context.Background()

	var info swapd.InfoResponse
	require.NoError(t, client.get(ctx, "/v1/info", &info))
	require.EqualValues(t, 3, info.PayloadVersion)

	err := client.post(ctx, "/v1/faucet", &swapd.FaucetRequest{
		Amount: "1",
	}, nil)
	require.NoError(t, err)

	err = client.post(ctx, "/v1/faucet", &swapd.FaucetRequest{
		Amount: "2",
	}, nil)
	require.EqualError(t, err, "faucet limit exceeded")

	var swaps swapd.SwapsResponse
	err = client.get(ctx, "/v1/swaps", &swaps)
	require.ErrorContains(t, err, "500")
}

// TestParseRecipient tests the accepted recipient formats.
func TestParseRecipient(t *testing.T) {
	addr := common.HexToAddress("0xb0b")

	tests := []struct {
		name   string
		input  string
		expect payload.Recipient
		err    bool
	}{
		{
			name:   "address",
			input:  addr.Hex(),
			expect: payload.RecipientFromAddress(addr),
		},
		{
			name:   "full recipient",
			input:  "ff" + common.Bytes2Hex(make([]byte, 31)),
			expect: payload.Recipient{0xff},
		},
		{
			name:  "short",
			input: "0xabcd",
			err:   true,
		},
		{
			name:  "not hex",
			input: "0xzz",
			err:   true,
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			r, err := parseRecipient(test.input)
			if test.err {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.expect, r)
		})
	}
}

// TestMarshalPayload tests the printable form of decoded payloads.
func TestMarshalPayload(t *testing.T) {
	codec, err := payload.NewCodec(payload.V3)
	require.NoError(t, err)

	p := &payload.Payload{
		Recipient: payload.RecipientFromAddress(
			common.HexToAddress("0xb0b"),
		),
		Swap: &payload.Instructions{
			AssetOut:  common.HexToAddress("0xa1"),
			PoolAsset: common.HexToAddress("0xb1"),
			PoolFee:   3000,
			TradeMode: payload.ExactOut,
			LegKind:   payload.LegKindNative,
		},
	}
	p.Swap.Amount.SetUint64(1_000_000)
	p.Swap.Deadline.SetUint64(1_700_000_000)

	raw, err := codec.Encode(p)
	require.NoError(t, err)

	decoded, err := codec.Decode(raw)
	require.NoError(t, err)

	resp := marshalPayload(codec.Version(), len(raw), decoded)
	require.Equal(t, payload.FullLengthV3, resp.Length)
	require.Equal(t, "1000000", resp.Amount)
	require.Equal(t, "1700000000", resp.Deadline)
	require.Equal(t, "ExactOut", resp.TradeMode)
	require.Equal(t, "Native", resp.LegKind)
	require.EqualValues(t, 3000, resp.PoolFee)

	recipientOnly := marshalPayload(
		codec.Version(), payload.RecipientOnlyLength,
		&payload.Payload{Recipient: p.Recipient},
	)
	require.Empty(t, recipientOnly.Amount)
	require.Empty(t, recipientOnly.TradeMode)
}
