package zerox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/omnidex/swapgate/internal/domain"
)

func TestGetQuoteEndpointSelection(t *testing.T) {
	tests := []struct {
		name     string
		strategy domain.ApprovalStrategy
		strict   bool
		wantPath string
	}{
		{"allowance holder price", domain.ApprovalAllowanceHolder, false, "/swap/allowance-holder/price"},
		{"allowance holder quote", domain.ApprovalAllowanceHolder, true, "/swap/allowance-holder/quote"},
		{"permit2 price", domain.ApprovalPermit2, false, "/swap/permit2/price"},
		{"permit2 quote", domain.ApprovalPermit2, true, "/swap/permit2/quote"},
		{"default strategy", "", true, "/swap/allowance-holder/quote"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				if got := r.Header.Get("0x-api-key"); got != "key" {
					t.Errorf("api key header: %q", got)
				}
				if got := r.Header.Get("0x-version"); got != "v2" {
					t.Errorf("version header: %q", got)
				}
				w.Write([]byte(`{"buyAmount":"100","transaction":{"to":"0x1","data":"0x2"}}`))
			}))
			defer srv.Close()

			a := New(srv.URL, "key", time.Second)
			req := &domain.SwapRequest{
				ChainID:          1,
				SellToken:        "0xa",
				BuyToken:         "0xb",
				SellAmount:       "1000",
				ApprovalStrategy: tt.strategy,
			}
			q, err := a.GetQuote(context.Background(), req, tt.strict)
			if err != nil {
				t.Fatalf("GetQuote: %v", err)
			}
			if gotPath != tt.wantPath {
				t.Errorf("path: want=%s got=%s", tt.wantPath, gotPath)
			}
			if q.Aggregator != Name {
				t.Errorf("aggregator: want=%s got=%s", Name, q.Aggregator)
			}
		})
	}
}

func TestGetQuoteSlippageBps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("slippageBps"); got != "50" {
			t.Errorf("slippageBps: want=50 got=%s", got)
		}
		w.Write([]byte(`{"buyAmount":"100"}`))
	}))
	defer srv.Close()

	a := New(srv.URL, "", time.Second)
	req := &domain.SwapRequest{
		ChainID:            1,
		SellToken:          "0xa",
		BuyToken:           "0xb",
		SellAmount:         "1000",
		SlippagePercentage: "0.5",
	}
	if _, err := a.GetQuote(context.Background(), req, false); err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
}

func TestGetQuoteParsesPermit2Block(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"buyAmount": "100",
			"transaction": {"to": "0x1", "data": "0x2"},
			"issues": {"allowance": {"spender": "0x2222222222222222222222222222222222222222"}},
			"permit2": {
				"type": "Permit2",
				"hash": "0xdead",
				"eip712": {"primaryType": "PermitTransferFrom", "message": {"nonce": "1"}}
			}
		}`))
	}))
	defer srv.Close()

	a := New(srv.URL, "", time.Second)
	req := &domain.SwapRequest{ChainID: 1, SellToken: "0xa", BuyToken: "0xb", SellAmount: "1", ApprovalStrategy: domain.ApprovalPermit2}
	q, err := a.GetQuote(context.Background(), req, true)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.Permit2 == nil {
		t.Fatal("permit2 block dropped")
	}
	if q.Permit2.EIP712.PrimaryType != "PermitTransferFrom" {
		t.Errorf("primary type: %s", q.Permit2.EIP712.PrimaryType)
	}
	if q.AllowanceTarget != "0x2222222222222222222222222222222222222222" {
		t.Errorf("allowance target: %s", q.AllowanceTarget)
	}
}

func TestGetQuoteUnsupportedChain(t *testing.T) {
	a := New("http://unused", "", time.Second)
	_, err := a.GetQuote(context.Background(), &domain.SwapRequest{ChainID: 324, SellAmount: "1"}, false)
	if domain.KindOf(err) != domain.ErrUnsupported {
		t.Errorf("want unsupported, got %v", err)
	}
}

func TestProbeAllowanceTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"issues":{"allowance":{"spender":"0x3333333333333333333333333333333333333333"}}}`))
	}))
	defer srv.Close()

	a := New(srv.URL, "", time.Second)
	target, err := a.ProbeAllowanceTarget(context.Background(), 1)
	if err != nil {
		t.Fatalf("ProbeAllowanceTarget: %v", err)
	}
	if target != "0x3333333333333333333333333333333333333333" {
		t.Errorf("target: %s", target)
	}
}
