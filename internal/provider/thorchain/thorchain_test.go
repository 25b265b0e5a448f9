package thorchain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/domain"
)

func TestQuoteBTCToEth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/thorchain/quote/swap" {
			t.Errorf("path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("from_asset") != "BTC.BTC" || q.Get("to_asset") != "ETH.ETH" {
			t.Errorf("assets: from=%s to=%s", q.Get("from_asset"), q.Get("to_asset"))
		}
		if q.Get("destination") != "0xrecipient" {
			t.Errorf("destination: %s", q.Get("destination"))
		}
		w.Write([]byte(`{
			"expected_amount_out": "1500000000",
			"inbound_address": "bc1qvault",
			"memo": "=:ETH.ETH:0xrecipient",
			"outbound_delay_seconds": 120,
			"total_swap_seconds": 720,
			"fees": {"total": "2000", "outbound": "1500", "liquidity": "500"},
			"slippage_bps": 30
		}`))
	}))
	defer srv.Close()

	a := New(srv.URL, time.Second)
	req := &domain.UniversalSwapRequest{
		From:       domain.ChainRef{Ecosystem: domain.EcosystemBitcoin},
		To:         domain.ChainRef{Chain: chains.Ethereum, Ecosystem: domain.EcosystemEVM},
		SellToken:  "BTC",
		BuyToken:   "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE",
		SellAmount: "100000000",
		Recipient:  "0xrecipient",
	}
	route, err := a.QuoteBTC(context.Background(), req)
	if err != nil {
		t.Fatalf("QuoteBTC: %v", err)
	}
	if route.TotalEstimatedOut != "1500000000" {
		t.Errorf("out: %s", route.TotalEstimatedOut)
	}
	// The memo is the redeemable route handle.
	if route.RouteID != "=:ETH.ETH:0xrecipient" {
		t.Errorf("route id: %s", route.RouteID)
	}
	if len(route.Steps) != 2 || route.Steps[0].Kind != "native" || route.Steps[1].Kind != "swap" {
		t.Errorf("steps: %+v", route.Steps)
	}
	if route.ETASeconds != 720 {
		t.Errorf("eta: %d", route.ETASeconds)
	}
}

func TestDepositAndTrack(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		memo   string
		want   domain.ExecutionStatus
		werr   bool
	}{
		{"done", 200, `{"observed_tx":{"status":"done","tx":{"memo":"=:ETH.ETH:0xr"}}}`, "=:ETH.ETH:0xr", domain.StatusSuccess, false},
		{"refund", 200, `{"observed_tx":{"status":"refund","tx":{"memo":"=:ETH.ETH:0xr"}}}`, "=:ETH.ETH:0xr", domain.StatusFailed, false},
		{"still observing", 200, `{"observed_tx":{"status":"","tx":{}}}`, "", domain.StatusPending, false},
		{"not yet observed", 404, `{}`, "", domain.StatusPending, false},
		{"memo mismatch", 200, `{"observed_tx":{"status":"done","tx":{"memo":"=:BTC.BTC:other"}}}`, "=:ETH.ETH:0xr", domain.StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/thorchain/tx/abc123" {
					t.Errorf("path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := New(srv.URL, time.Second)
			got, err := a.DepositAndTrack(context.Background(), "0xabc123", tt.memo)
			if tt.werr != (err != nil) {
				t.Fatalf("err: want=%v got=%v", tt.werr, err)
			}
			if got != tt.want {
				t.Errorf("status: want=%s got=%s", tt.want, got)
			}
		})
	}
}

func TestAssetFor(t *testing.T) {
	tests := []struct {
		name  string
		ref   domain.ChainRef
		token string
		want  string
		werr  bool
	}{
		{"passthrough notation", domain.ChainRef{}, "GAIA.ATOM", "GAIA.ATOM", false},
		{"bitcoin", domain.ChainRef{Ecosystem: domain.EcosystemBitcoin}, "BTC", "BTC.BTC", false},
		{"thorchain", domain.ChainRef{Ecosystem: domain.EcosystemTHORChain}, "RUNE", "THOR.RUNE", false},
		{"cosmos", domain.ChainRef{Ecosystem: domain.EcosystemCosmos}, "ATOM", "GAIA.ATOM", false},
		{"eth native sentinel", domain.ChainRef{Chain: chains.Ethereum, Ecosystem: domain.EcosystemEVM}, "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE", "ETH.ETH", false},
		{"bsc zero address", domain.ChainRef{Chain: chains.BSC, Ecosystem: domain.EcosystemEVM}, "0x0000000000000000000000000000000000000000", "BSC.BNB", false},
		{"evm erc20 unsupported", domain.ChainRef{Chain: chains.Ethereum, Ecosystem: domain.EcosystemEVM}, "0xa0b8", "", true},
		{"unsupported evm chain", domain.ChainRef{Chain: chains.Polygon, Ecosystem: domain.EcosystemEVM}, "0x0000000000000000000000000000000000000000", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := assetFor(tt.ref, tt.token)
			if tt.werr != (err != nil) {
				t.Fatalf("err: want=%v got=%v", tt.werr, err)
			}
			if got != tt.want {
				t.Errorf("asset: want=%s got=%s", tt.want, got)
			}
		})
	}
}

func TestConfidenceForSlippage(t *testing.T) {
	tests := []struct {
		bps  int64
		want float64
	}{
		{0, 1.0},
		{100, 0.9},
		{500, 0.5},
		{2000, 0.1},
	}
	for _, tt := range tests {
		if got := confidenceForSlippage(tt.bps); got != tt.want {
			t.Errorf("bps=%d: want=%v got=%v", tt.bps, tt.want, got)
		}
	}
}
