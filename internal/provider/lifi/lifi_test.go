package lifi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/provider"
)

const quoteBody = `{
	"id": "route-1",
	"tool": "stargate",
	"estimate": {
		"toAmount": "990000",
		"toAmountMin": "980000",
		"executionDuration": 120,
		"gasCosts": [{"amount": "21000", "name": "SEND"}],
		"feeCosts": [{"amount": "500", "name": "LP"}]
	},
	"includedSteps": [
		{"type": "swap", "tool": "uniswap", "action": {"fromChainId": 1, "toChainId": 1}},
		{"type": "cross", "tool": "stargate", "action": {"fromChainId": 1, "toChainId": 42161}}
	],
	"transactionRequest": {"to": "0xRouter", "data": "0xdead", "value": "0", "gasLimit": "500000", "chainId": 1}
}`

func testRequest() *domain.UniversalSwapRequest {
	return &domain.UniversalSwapRequest{
		From:       domain.ChainRef{Chain: 1, Ecosystem: domain.EcosystemEVM},
		To:         domain.ChainRef{Chain: 42161, Ecosystem: domain.EcosystemEVM},
		SellToken:  "0xa",
		BuyToken:   "0xb",
		SellAmount: "1000000",
		Taker:      "0xc",
	}
}

func TestGetRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/quote" {
			t.Errorf("path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("fromChain") != "1" || q.Get("toChain") != "42161" {
			t.Errorf("chain params: from=%s to=%s", q.Get("fromChain"), q.Get("toChain"))
		}
		w.Write([]byte(quoteBody))
	}))
	defer srv.Close()

	a := New(srv.URL, "", time.Second, nil)
	routes, err := a.GetRoutes(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("GetRoutes: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("routes: want=1 got=%d", len(routes))
	}

	r := routes[0]
	if r.TotalEstimatedOut != "990000" {
		t.Errorf("out: want=990000 got=%s", r.TotalEstimatedOut)
	}
	if len(r.Steps) != 2 {
		t.Fatalf("steps: want=2 got=%d", len(r.Steps))
	}
	if r.Steps[0].Kind != "swap" || r.Steps[1].Kind != "bridge" {
		t.Errorf("step kinds: %s, %s", r.Steps[0].Kind, r.Steps[1].Kind)
	}
	if r.Confidence <= 0 || r.Confidence > 1 {
		t.Errorf("confidence out of range: %f", r.Confidence)
	}
}

func TestExecuteCachedRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(quoteBody))
	}))
	defer srv.Close()

	var submittedChain uint64
	submit := func(_ context.Context, chainID uint64, tx *domain.TransactionRequest, _ provider.SignerContext) (string, error) {
		submittedChain = chainID
		if tx.Data != "0xdead" {
			t.Errorf("tx data: %s", tx.Data)
		}
		return "0xhash", nil
	}

	a := New(srv.URL, "", time.Second, submit)
	routes, err := a.GetRoutes(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("GetRoutes: %v", err)
	}

	hashes, err := a.Execute(context.Background(), routes[0].RouteID, provider.SignerContext{Secret: "k"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != "0xhash" {
		t.Errorf("hashes: %v", hashes)
	}
	if submittedChain != 1 {
		t.Errorf("submitted chain: want=1 got=%d", submittedChain)
	}
}

func TestExecuteUnknownRoute(t *testing.T) {
	a := New("http://unused", "", time.Second, nil)
	_, err := a.Execute(context.Background(), "missing", provider.SignerContext{})
	if domain.KindOf(err) != domain.ErrQuoteExpired {
		t.Errorf("want quote-expired, got %v", err)
	}
}

func TestStatusBeforeExecution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(quoteBody))
	}))
	defer srv.Close()

	a := New(srv.URL, "", time.Second, nil)
	routes, err := a.GetRoutes(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("GetRoutes: %v", err)
	}

	status, err := a.Status(context.Background(), routes[0].RouteID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != domain.StatusPending {
		t.Errorf("pre-execution status: want=%s got=%s", domain.StatusPending, status)
	}
}
