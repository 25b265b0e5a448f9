package jupiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/omnidex/swapgate/internal/domain"
)

const quoteBody = `{
	"inputMint": "So11111111111111111111111111111111111111112",
	"outputMint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"inAmount": "1000000",
	"outAmount": "150000",
	"otherAmountThreshold": "149000",
	"priceImpactPct": "0.01",
	"routePlan": [
		{"swapInfo": {"label": "Orca"}, "percent": 60},
		{"swapInfo": {"label": "Raydium"}, "percent": 40}
	]
}`

func solRequest() *domain.UniversalSwapRequest {
	return &domain.UniversalSwapRequest{
		From:       domain.ChainRef{Ecosystem: domain.EcosystemSolana},
		To:         domain.ChainRef{Ecosystem: domain.EcosystemSolana},
		SellToken:  solMint,
		BuyToken:   usdcMint,
		SellAmount: "1000000",
		Taker:      "TakerPubkey111",
	}
}

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v6/quote" {
			t.Errorf("path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("inputMint") != solMint || q.Get("outputMint") != usdcMint {
			t.Errorf("mints: in=%s out=%s", q.Get("inputMint"), q.Get("outputMint"))
		}
		if q.Get("slippageBps") != "50" {
			t.Errorf("default slippageBps: want=50 got=%s", q.Get("slippageBps"))
		}
		w.Write([]byte(quoteBody))
	}))
	defer srv.Close()

	a := New(srv.URL, "", time.Second)
	route, err := a.Quote(context.Background(), solRequest())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if route.TotalEstimatedOut != "150000" {
		t.Errorf("out: want=150000 got=%s", route.TotalEstimatedOut)
	}
	if len(route.Steps) != 2 {
		t.Fatalf("steps: want=2 got=%d", len(route.Steps))
	}
	if route.Steps[0].Protocol != "Orca" || route.Steps[1].Protocol != "Raydium" {
		t.Errorf("hop protocols: %s, %s", route.Steps[0].Protocol, route.Steps[1].Protocol)
	}
	if route.Confidence != 1.0 {
		t.Errorf("confidence: want=1.0 got=%f", route.Confidence)
	}
	if route.RouteID == "" {
		t.Error("route id missing")
	}
}

// BuildAndSign echoes the cached quote body and the taker's public key, never
// the keypair.
func TestBuildAndSignEchoesCachedQuote(t *testing.T) {
	var swapReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v6/quote":
			w.Write([]byte(quoteBody))
		case "/v6/swap":
			json.NewDecoder(r.Body).Decode(&swapReq)
			w.Write([]byte(`{"swapTransaction": "base64tx"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := New(srv.URL, "", time.Second)
	route, err := a.Quote(context.Background(), solRequest())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	tx, err := a.BuildAndSign(context.Background(), route, "secret-keypair")
	if err != nil {
		t.Fatalf("BuildAndSign: %v", err)
	}
	if tx.RawTx != "base64tx" {
		t.Errorf("rawTx: %s", tx.RawTx)
	}
	if swapReq["userPublicKey"] != "TakerPubkey111" {
		t.Errorf("userPublicKey: %v", swapReq["userPublicKey"])
	}
	echoed := swapReq["quoteResponse"].(map[string]any)
	if echoed["outAmount"] != "150000" {
		t.Errorf("echoed quote outAmount: %v", echoed["outAmount"])
	}
	for _, v := range swapReq {
		if s, ok := v.(string); ok && s == "secret-keypair" {
			t.Error("keypair forwarded upstream")
		}
	}
}

func TestBuildAndSignUnknownRoute(t *testing.T) {
	a := New("http://unused", "", time.Second)
	_, err := a.BuildAndSign(context.Background(), &domain.RouteQuote{RouteID: "missing"}, "")
	if domain.KindOf(err) != domain.ErrQuoteExpired {
		t.Errorf("want quote-expired, got %v", err)
	}
}

func TestQuoteNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	a := New(srv.URL, "", time.Second)
	_, err := a.Quote(context.Background(), solRequest())
	if domain.KindOf(err) != domain.ErrUpstream {
		t.Errorf("want upstream error, got %v", err)
	}
}
