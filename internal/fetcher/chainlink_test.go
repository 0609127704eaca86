package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

const testFeed = "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"

// newAggregatorServer answers eth_call for decimals and latestRoundData with
// ABI-packed outputs, counting decimals calls.
func newAggregatorServer(t *testing.T, places uint8, answer *big.Int, updatedAt int64) (*httptest.Server, *int) {
	t.Helper()

	decimalsOut, err := aggregatorABI.Methods["decimals"].Outputs.Pack(places)
	if err != nil {
		t.Fatalf("pack decimals: %v", err)
	}
	roundOut, err := aggregatorABI.Methods["latestRoundData"].Outputs.Pack(
		big.NewInt(110680464442257320), answer, big.NewInt(updatedAt), big.NewInt(updatedAt), big.NewInt(110680464442257320),
	)
	if err != nil {
		t.Fatalf("pack latestRoundData: %v", err)
	}

	decimalsCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		if req.Method != "eth_call" || len(req.Params) == 0 {
			t.Errorf("unexpected rpc method %s", req.Method)
			return
		}

		var call struct {
			To    string        `json:"to"`
			Input hexutil.Bytes `json:"input"`
			Data  hexutil.Bytes `json:"data"`
		}
		if err := json.Unmarshal(req.Params[0], &call); err != nil {
			t.Errorf("decode call args: %v", err)
			return
		}
		input := call.Input
		if len(input) == 0 {
			input = call.Data
		}

		var out []byte
		switch {
		case bytes.HasPrefix(input, aggregatorABI.Methods["decimals"].ID):
			decimalsCalls++
			out = decimalsOut
		case bytes.HasPrefix(input, aggregatorABI.Methods["latestRoundData"].ID):
			out = roundOut
		default:
			t.Errorf("unexpected call data %x", input)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  hexutil.Encode(out),
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &decimalsCalls
}

func TestChainlinkGetPriceDecodesRound(t *testing.T) {
	answer := big.NewInt(6718733000000)
	srv, decimalsCalls := newAggregatorServer(t, 8, answer, 1700000000)

	cl := NewChainlink(ChainlinkOptions{
		RPCURL:  srv.URL,
		Feeds:   map[string]string{"bitcoin": testFeed},
		Timeout: 2 * time.Second,
	}, noopLogger())

	quote, err := cl.GetPrice(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if !quote.Price.Equal(decimal.RequireFromString("67187.33")) {
		t.Fatalf("expected 67187.33, got %s", quote.Price)
	}
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	if !quote.Timestamp.Equal(want) {
		t.Fatalf("expected updatedAt %s, got %s", want, quote.Timestamp)
	}

	if _, err := cl.GetPrice(context.Background(), "bitcoin"); err != nil {
		t.Fatalf("second GetPrice: %v", err)
	}
	if *decimalsCalls != 1 {
		t.Fatalf("decimals should be cached per feed, called %d times", *decimalsCalls)
	}
}

func TestChainlinkRejectsNonPositiveAnswer(t *testing.T) {
	for _, answer := range []*big.Int{big.NewInt(0), big.NewInt(-5)} {
		srv, _ := newAggregatorServer(t, 8, answer, 1700000000)
		cl := NewChainlink(ChainlinkOptions{
			RPCURL:  srv.URL,
			Feeds:   map[string]string{"ethereum": testFeed},
			Timeout: 2 * time.Second,
		}, noopLogger())

		_, err := cl.GetPrice(context.Background(), "ethereum")
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("answer %s: expected FetchError, got %v", answer, err)
		}
		if fetchErr.Token != "ethereum" {
			t.Fatalf("unexpected token %q", fetchErr.Token)
		}
	}
}

func TestChainlinkMissingConfig(t *testing.T) {
	cl := NewChainlink(ChainlinkOptions{}, noopLogger())
	if _, err := cl.GetPrice(context.Background(), "bitcoin"); err == nil {
		t.Fatal("missing rpc url should fail")
	}

	cl = NewChainlink(ChainlinkOptions{RPCURL: "http://localhost", Feeds: map[string]string{"bitcoin": "not-an-address"}}, noopLogger())
	_, err := cl.GetPrice(context.Background(), "bitcoin")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("invalid feed address should be a FetchError, got %v", err)
	}
}

func TestChainlinkGetPricesKeepsOrder(t *testing.T) {
	cl := NewChainlink(ChainlinkOptions{}, noopLogger())
	results := cl.GetPrices(context.Background(), []string{"bitcoin", "solana"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Token != "bitcoin" || results[1].Token != "solana" {
		t.Fatalf("results out of order: %+v", results)
	}
	for _, r := range results {
		if r.OK() {
			t.Fatalf("unconfigured fetcher should fail for %s", r.Token)
		}
	}
}
