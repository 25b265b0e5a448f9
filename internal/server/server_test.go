package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/config"
	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/execution"
	"github.com/omnidex/swapgate/internal/provider"
	"github.com/omnidex/swapgate/internal/quote"
	"github.com/omnidex/swapgate/internal/routing"
)

func testServerWith(registry *provider.Registry) *Server {
	cfg := &config.Config{
		Port:       8080,
		CORSOrigin: "*",
		RateLimit:  1000,
		RateWindow: time.Minute,
	}
	quotes := routing.NewSupportedQuoteCache()
	classifier := routing.NewClassifier(registry, quotes)
	orchestrator := quote.NewOrchestrator(registry, provider.NewHealthMonitor(), quotes)
	coordinator := execution.NewCoordinator(orchestrator, nil, nil, nil)
	return New(cfg, registry, classifier, orchestrator, nil, nil, coordinator, chains.NewChainList())
}

func testServer() *Server {
	return testServerWith(provider.NewRegistry())
}

func serveRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:50000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func doRequest(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return serveRequest(t, testServer(), method, path, body)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v (body=%s)", err, rec.Body.String())
	}
	return out
}

func TestAnalyzeEndpoint(t *testing.T) {
	body := `{
		"from": {"chain": 1, "ecosystem": "evm"},
		"to": {"chain": 42161, "ecosystem": "evm"},
		"sellToken": "0xa",
		"buyToken": "0xb",
		"sellAmount": "1000"
	}`
	rec := doRequest(t, http.MethodPost, "/swap-analysis/analyze", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	if env["success"] != true {
		t.Error("envelope success flag missing")
	}
	if env["timestamp"] == nil {
		t.Error("envelope timestamp missing")
	}
	data := env["data"].(map[string]any)
	if data["swapType"] != "l1-to-l2" {
		t.Errorf("swapType: want=l1-to-l2 got=%v", data["swapType"])
	}
	if data["providerCategory"] != "meta-aggregator" {
		t.Errorf("category: want=meta-aggregator got=%v", data["providerCategory"])
	}
}

func TestAnalyzeUnroutable(t *testing.T) {
	body := `{
		"from": {"chain": 1, "ecosystem": "martian"},
		"to": {"chain": 1, "ecosystem": "evm"},
		"sellToken": "0xa",
		"buyToken": "0xb",
		"sellAmount": "1"
	}`
	rec := doRequest(t, http.MethodPost, "/swap-analysis/analyze", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", rec.Code)
	}

	var errBody map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if errBody["message"] == nil || errBody["error"] == nil {
		t.Errorf("error body shape: %v", errBody)
	}
}

func TestEcosystemsEndpoint(t *testing.T) {
	rec := doRequest(t, http.MethodGet, "/swap-analysis/ecosystems", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	entries := env["data"].([]any)
	if len(entries) != 10 {
		t.Errorf("ecosystems: want=10 got=%d", len(entries))
	}
}

func TestExecuteRequiresSecret(t *testing.T) {
	body := `{"chainId": 1, "sellToken": "0xa", "buyToken": "0xb", "sellAmount": "1", "taker": "0xc"}`
	rec := doRequest(t, http.MethodPost, "/universal-swap/execute", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestStatusUnknownExecution(t *testing.T) {
	rec := doRequest(t, http.MethodGet, "/universal-swap/status/nonexistent", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: want=404 got=%d", rec.Code)
	}
}

func TestQuoteRejectsMalformedBody(t *testing.T) {
	rec := doRequest(t, http.MethodPost, "/universal-swap/quote", `{"unknownField": 1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", rec.Code)
	}
}

func TestAggregatorsEndpoint(t *testing.T) {
	rec := doRequest(t, http.MethodGet, "/universal-swap/aggregators", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	data := env["data"].(map[string]any)
	for _, key := range []string{"evm", "meta", "solana", "native"} {
		if _, ok := data[key]; !ok {
			t.Errorf("missing category %s", key)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	rec := doRequest(t, http.MethodGet, "/universal-swap/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	data := env["data"].(map[string]any)
	if data["status"] != "healthy" {
		t.Errorf("health status: want=healthy got=%v", data["status"])
	}
	if data["timestamp"] == nil {
		t.Error("health timestamp missing")
	}
}

// fakeEVMAdapter answers every chain-1 quote with a fixed payload.
type fakeEVMAdapter struct {
	name string
	to   string
	data string
}

func (f *fakeEVMAdapter) Name() string                      { return f.name }
func (f *fakeEVMAdapter) Config() provider.Config           { return provider.Config{} }
func (f *fakeEVMAdapter) CheckHealth(context.Context) error { return nil }

func (f *fakeEVMAdapter) GetQuote(_ context.Context, req *domain.SwapRequest, _ bool) (*domain.SwapQuote, error) {
	return &domain.SwapQuote{
		SellToken:  req.SellToken,
		BuyToken:   req.BuyToken,
		SellAmount: req.SellAmount,
		BuyAmount:  "100",
		To:         f.to,
		Data:       f.data,
		Gas:        "210000",
		Aggregator: f.name,
	}, nil
}

func (f *fakeEVMAdapter) BuildTransaction(context.Context, *domain.SwapRequest) (*domain.TransactionRequest, error) {
	return nil, domain.NewError(domain.ErrUnsupported, "quote first")
}

func (f *fakeEVMAdapter) SupportsChain(id uint64) bool { return id == 1 }
func (f *fakeEVMAdapter) SupportedChains() []uint64    { return []uint64{1} }

// fakeMetaAdapter recognises exactly one quoted route.
type fakeMetaAdapter struct {
	routeID string
	txids   []string
}

func (f *fakeMetaAdapter) Name() string                      { return "lifi" }
func (f *fakeMetaAdapter) Config() provider.Config           { return provider.Config{} }
func (f *fakeMetaAdapter) CheckHealth(context.Context) error { return nil }

func (f *fakeMetaAdapter) GetRoutes(context.Context, *domain.UniversalSwapRequest) ([]*domain.RouteQuote, error) {
	return nil, domain.NewError(domain.ErrUnsupported, "not under test")
}

func (f *fakeMetaAdapter) Execute(_ context.Context, routeID string, _ provider.SignerContext) ([]string, error) {
	if routeID != f.routeID {
		return nil, domain.NewError(domain.ErrQuoteExpired, "route is unknown or expired")
	}
	return f.txids, nil
}

func (f *fakeMetaAdapter) Status(_ context.Context, routeID string) (domain.ExecutionStatus, error) {
	if routeID != f.routeID {
		return "", domain.NewError(domain.ErrNotFound, "route is unknown")
	}
	return domain.StatusPending, nil
}

func (f *fakeMetaAdapter) SupportedChains() (from, to []uint64) {
	return []uint64{1}, []uint64{42161}
}

// Same-chain EVM quote: the response carries ranked routes, a score-aware
// recommendation and the winning transaction payload.
func TestQuoteEVMResponseShape(t *testing.T) {
	registry := provider.NewRegistry()
	registry.RegisterEVM(&fakeEVMAdapter{name: "0x", to: "0xzxto", data: "0xcd"})
	registry.RegisterEVM(&fakeEVMAdapter{name: "odos", to: "0xodto", data: "0xef"})
	registry.OnRegistrationComplete()
	s := testServerWith(registry)

	body := `{
		"from": {"chain": 1, "ecosystem": "evm"},
		"to": {"chain": 1, "ecosystem": "evm"},
		"sellToken": "0xa",
		"buyToken": "0xb",
		"sellAmount": "1000",
		"taker": "0xc"
	}`
	rec := serveRequest(t, s, http.MethodPost, "/universal-swap/quote", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	data := env["data"].(map[string]any)
	if data["swapType"] != "on-chain" {
		t.Errorf("swapType: want=on-chain got=%v", data["swapType"])
	}
	routes := data["routes"].([]any)
	if len(routes) != 2 {
		t.Fatalf("routes: want=2 got=%d", len(routes))
	}
	// Equal outputs on chain 1: the chain-1 nudge decides the recommendation.
	recommended := data["recommendedRoute"].(map[string]any)
	if recommended["provider"] != "0x" {
		t.Errorf("recommended provider: want=0x got=%v", recommended["provider"])
	}
	txData := data["transactionData"].(map[string]any)
	if txData["to"] != "0xzxto" {
		t.Errorf("transactionData.to: want=0xzxto got=%v", txData["to"])
	}
	if _, ok := data["warnings"]; !ok {
		t.Error("warnings array missing")
	}
}

func TestExecuteRouteByID(t *testing.T) {
	registry := provider.NewRegistry()
	registry.RegisterMeta(&fakeMetaAdapter{routeID: "route-1", txids: []string{"0xdead"}})
	registry.OnRegistrationComplete()
	s := testServerWith(registry)

	rec := serveRequest(t, s, http.MethodPost, "/universal-swap/execute",
		`{"routeId": "route-1", "signingSecret": "s"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	data := env["data"].(map[string]any)
	if data["provider"] != "lifi" {
		t.Errorf("provider: want=lifi got=%v", data["provider"])
	}
	txids := data["txids"].([]any)
	if len(txids) != 1 || txids[0] != "0xdead" {
		t.Errorf("txids: %v", txids)
	}
}

func TestExecuteUnknownRouteID(t *testing.T) {
	registry := provider.NewRegistry()
	registry.RegisterMeta(&fakeMetaAdapter{routeID: "route-1"})
	registry.OnRegistrationComplete()
	s := testServerWith(registry)

	rec := serveRequest(t, s, http.MethodPost, "/universal-swap/execute",
		`{"routeId": "missing", "signingSecret": "s"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: want=502 got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestStatusRouteByID(t *testing.T) {
	registry := provider.NewRegistry()
	registry.RegisterMeta(&fakeMetaAdapter{routeID: "route-1"})
	registry.OnRegistrationComplete()
	s := testServerWith(registry)

	rec := serveRequest(t, s, http.MethodPost, "/universal-swap/status", `{"routeId": "route-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	data := env["data"].(map[string]any)
	if data["status"] != string(domain.StatusPending) {
		t.Errorf("route status: want=%s got=%v", domain.StatusPending, data["status"])
	}
}

func TestAnalyzeGetWithQueryParams(t *testing.T) {
	rec := doRequest(t, http.MethodGet,
		"/swap-analysis/analyze?fromChain=1&fromEcosystem=evm&toChain=42161&toEcosystem=evm&sellToken=0xa&buyToken=0xb&sellAmount=1000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	data := env["data"].(map[string]any)
	if data["swapType"] != "l1-to-l2" {
		t.Errorf("swapType: want=l1-to-l2 got=%v", data["swapType"])
	}
}
