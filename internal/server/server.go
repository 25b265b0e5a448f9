// Package server exposes the gateway's HTTP API: universal quoting,
// pre-checks, approvals, execution and routing analysis, behind per-client
// rate limiting, CORS and Prometheus instrumentation.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ethereum/go-ethereum/log"

	"github.com/omnidex/swapgate/internal/approval"
	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/config"
	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/execution"
	"github.com/omnidex/swapgate/internal/precheck"
	"github.com/omnidex/swapgate/internal/provider"
	"github.com/omnidex/swapgate/internal/quote"
	"github.com/omnidex/swapgate/internal/routing"
)

// maxBodyBytes bounds inbound request bodies.
const maxBodyBytes = 1 << 20

// Server wires the HTTP layer to the gateway's services.
type Server struct {
	cfg          *config.Config
	registry     *provider.Registry
	classifier   *routing.Classifier
	orchestrator *quote.Orchestrator
	approvals    *approval.Checker
	prechecker   *precheck.Checker
	coordinator  *execution.Coordinator
	chainList    *chains.ChainList
}

// New builds the server.
func New(cfg *config.Config, registry *provider.Registry, classifier *routing.Classifier,
	orchestrator *quote.Orchestrator, approvals *approval.Checker, prechecker *precheck.Checker,
	coordinator *execution.Coordinator, chainList *chains.ChainList) *Server {
	return &Server{
		cfg:          cfg,
		registry:     registry,
		classifier:   classifier,
		orchestrator: orchestrator,
		approvals:    approvals,
		prechecker:   prechecker,
		coordinator:  coordinator,
		chainList:    chainList,
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{s.cfg.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	limiter := newRateLimiter(s.cfg.RateLimit, s.cfg.RateWindow)

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(limiter.middleware)

		r.Route("/universal-swap", func(r chi.Router) {
			r.Post("/quote", s.handleQuote)
			r.Post("/pre-check", s.handlePreCheck)
			r.Post("/execute", s.handleExecute)
			r.Get("/status/{id}", s.handleStatus)
			r.Post("/status", s.handleStatusPost)
			r.Get("/approval/status", s.handleApprovalStatus)
			r.Post("/approval/status", s.handleApprovalStatus)
			r.Post("/approval/execute", s.handleApprovalExecute)
			r.Get("/supported-chains", s.handleSupportedChains)
			r.Get("/aggregators", s.handleAggregators)
			r.Get("/health", s.handleHealth)
		})

		r.Route("/swap-analysis", func(r chi.Router) {
			r.Post("/analyze", s.handleAnalyze)
			r.Get("/analyze", s.handleAnalyze)
			r.Get("/ecosystems", s.handleEcosystems)
		})
	})

	return r
}

// envelope is the uniform success wrapper.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// respondError maps a classified error to its HTTP status and the error body
// shape: message, error and optional details.
func respondError(w http.ResponseWriter, err error) {
	body := map[string]any{
		"message": "request failed",
		"error":   err.Error(),
	}
	var gw *domain.Error
	if e, ok := err.(*domain.Error); ok {
		gw = e
	}
	if gw != nil {
		body["message"] = gw.Message
		body["error"] = string(gw.Kind)
		if gw.Detail != "" {
			body["details"] = gw.Detail
		}
	}
	writeJSON(w, domain.HTTPStatus(err), body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, domain.WrapError(domain.ErrValidation, "invalid request body", err))
		return false
	}
	return true
}

// quotePayload is the /universal-swap/quote response: a ranked routes list
// with the recommended route and its transaction payload, plus the raw
// comparison for EVM callers that want per-quote detail.
type quotePayload struct {
	SwapType         domain.SwapType            `json:"swapType"`
	Category         domain.ProviderCategory    `json:"providerCategory"`
	Routes           []*domain.RouteQuote       `json:"routes"`
	RecommendedRoute *domain.RouteQuote         `json:"recommendedRoute,omitempty"`
	TransactionData  *domain.TransactionRequest `json:"transactionData,omitempty"`
	Comparison       *quote.Comparison          `json:"comparison,omitempty"`
	Warnings         []string                   `json:"warnings"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req domain.UniversalSwapRequest
	if !decodeBody(w, r, &req) {
		return
	}

	swapType, err := s.classifier.DetermineSwapType(&req)
	if err != nil {
		quotesTotal.WithLabelValues("unroutable").Inc()
		respondError(w, err)
		return
	}
	category, err := s.classifier.CategoryFor(swapType, req.From)
	if err != nil {
		quotesTotal.WithLabelValues("unroutable").Inc()
		respondError(w, err)
		return
	}

	payload := quotePayload{SwapType: swapType, Category: category, Warnings: []string{}}
	switch category {
	case domain.CategoryEVMAggregator:
		cmp, err := s.orchestrator.GetMultipleQuotes(r.Context(), req.Legacy())
		if err != nil {
			quotesTotal.WithLabelValues("failed").Inc()
			respondError(w, err)
			return
		}
		payload.Comparison = cmp
		for _, q := range cmp.Quotes {
			payload.Routes = append(payload.Routes, quote.RouteFromSwapQuote(q, req.From.Chain))
		}
		best := cmp.BestQuote
		payload.RecommendedRoute = payload.Routes[0]
		payload.TransactionData = &domain.TransactionRequest{
			To:                   best.To,
			Data:                 best.Data,
			Value:                best.Value,
			GasLimit:             best.Gas,
			GasPrice:             best.GasPrice,
			MaxFeePerGas:         best.MaxFeePerGas,
			MaxPriorityFeePerGas: best.MaxPriorityFeePerGas,
		}
		if best.Data == "" {
			payload.Warnings = append(payload.Warnings,
				"indicative quote: transaction calldata is only attached on execution")
		}
	case domain.CategoryMetaAggregator:
		routes, err := s.orchestrator.CrossChainRoutes(r.Context(), &req)
		if err != nil {
			quotesTotal.WithLabelValues("failed").Inc()
			respondError(w, err)
			return
		}
		payload.Routes = routes
		payload.RecommendedRoute = routes[0]
	case domain.CategorySolanaRouter:
		routes, err := s.orchestrator.SolanaRoutes(r.Context(), &req)
		if err != nil {
			quotesTotal.WithLabelValues("failed").Inc()
			respondError(w, err)
			return
		}
		payload.Routes = routes
		payload.RecommendedRoute = routes[0]
	case domain.CategoryNativeRouter:
		routes, err := s.orchestrator.NativeRoutes(r.Context(), &req)
		if err != nil {
			quotesTotal.WithLabelValues("failed").Inc()
			respondError(w, err)
			return
		}
		payload.Routes = routes
		payload.RecommendedRoute = routes[0]
	}

	quotesTotal.WithLabelValues("success").Inc()
	respond(w, payload)
}

func (s *Server) handlePreCheck(w http.ResponseWriter, r *http.Request) {
	var req domain.UniversalSwapRequest
	if !decodeBody(w, r, &req) {
		return
	}
	respond(w, s.prechecker.Run(r.Context(), &req))
}

// executeRequest carries either a legacy swap or a previously quoted routeId,
// plus the caller's transient signing secret. The secret is never logged and
// not retained beyond the request.
type executeRequest struct {
	domain.SwapRequest
	RouteID       string `json:"routeId,omitempty"`
	SigningSecret string `json:"signingSecret"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SigningSecret == "" {
		respondError(w, domain.NewError(domain.ErrValidation, "signingSecret is required"))
		return
	}
	if req.RouteID != "" {
		s.executeRoute(w, r, &req)
		return
	}

	res, err := s.coordinator.Execute(r.Context(), &req.SwapRequest, req.SigningSecret)
	if err != nil {
		executionsTotal.WithLabelValues("failed").Inc()
		log.Warn("Swap execution failed", "chain", req.ChainID, "err", err)
		// The tracked result still carries the execution id for polling.
		writeJSON(w, domain.HTTPStatus(err), envelope{
			Success:   false,
			Data:      res,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	executionsTotal.WithLabelValues("success").Inc()
	respond(w, res)
}

// executeRoute redeems a quoted routeId through its meta-aggregator. The
// aggregator field narrows the dispatch; otherwise every registered
// meta-aggregator is asked until one recognises the route.
func (s *Server) executeRoute(w http.ResponseWriter, r *http.Request, req *executeRequest) {
	metas := s.registry.MetaAggregators()
	if req.Aggregator != "" {
		var narrowed []provider.MetaAggregator
		for _, m := range metas {
			if m.Name() == req.Aggregator {
				narrowed = append(narrowed, m)
			}
		}
		metas = narrowed
	}
	if len(metas) == 0 {
		respondError(w, domain.NewError(domain.ErrUnsupported, "no meta-aggregator can execute this route"))
		return
	}

	sc := provider.SignerContext{Secret: req.SigningSecret}
	var lastErr error
	for _, m := range metas {
		txids, err := m.Execute(r.Context(), req.RouteID, sc)
		if err != nil {
			lastErr = err
			// A route quoted by another adapter looks expired or unknown here.
			if kind := domain.KindOf(err); kind == domain.ErrQuoteExpired || kind == domain.ErrNotFound {
				continue
			}
			executionsTotal.WithLabelValues("failed").Inc()
			respondError(w, err)
			return
		}
		executionsTotal.WithLabelValues("success").Inc()
		respond(w, map[string]any{
			"routeId":  req.RouteID,
			"provider": m.Name(),
			"txids":    txids,
		})
		return
	}
	executionsTotal.WithLabelValues("failed").Inc()
	if lastErr == nil {
		lastErr = domain.NewError(domain.ErrNotFound, fmt.Sprintf("unknown route %s", req.RouteID))
	}
	respondError(w, lastErr)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, ok := s.coordinator.Status(id)
	if !ok {
		respondError(w, domain.NewError(domain.ErrNotFound, fmt.Sprintf("unknown execution %s", id)))
		return
	}
	respond(w, res)
}

// statusPostRequest polls either a coordinated execution or a meta-aggregator
// route by its id.
type statusPostRequest struct {
	ExecutionID string `json:"executionId,omitempty"`
	RouteID     string `json:"routeId,omitempty"`
}

func (s *Server) handleStatusPost(w http.ResponseWriter, r *http.Request) {
	var req statusPostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RouteID != "" {
		s.routeStatus(w, r, req.RouteID)
		return
	}
	res, ok := s.coordinator.Status(req.ExecutionID)
	if !ok {
		respondError(w, domain.NewError(domain.ErrNotFound, fmt.Sprintf("unknown execution %s", req.ExecutionID)))
		return
	}
	respond(w, res)
}

func (s *Server) routeStatus(w http.ResponseWriter, r *http.Request, routeID string) {
	var lastErr error
	for _, m := range s.registry.MetaAggregators() {
		status, err := m.Status(r.Context(), routeID)
		if err != nil {
			lastErr = err
			continue
		}
		respond(w, map[string]any{
			"routeId":  routeID,
			"provider": m.Name(),
			"status":   status,
		})
		return
	}
	if lastErr == nil {
		lastErr = domain.NewError(domain.ErrNotFound, fmt.Sprintf("unknown route %s", routeID))
	}
	respondError(w, lastErr)
}

// approvalStatusParams arrive as query parameters on GET and as a JSON body
// on POST; both shapes share field names.
type approvalStatusParams struct {
	ChainID  string `json:"chainId"`
	Token    string `json:"token"`
	Owner    string `json:"owner"`
	Amount   string `json:"amount"`
	Strategy string `json:"strategy,omitempty"`
}

func (s *Server) handleApprovalStatus(w http.ResponseWriter, r *http.Request) {
	var p approvalStatusParams
	if r.Method == http.MethodPost {
		if !decodeBody(w, r, &p) {
			return
		}
	} else {
		q := r.URL.Query()
		p = approvalStatusParams{
			ChainID:  q.Get("chainId"),
			Token:    q.Get("token"),
			Owner:    q.Get("owner"),
			Amount:   q.Get("amount"),
			Strategy: q.Get("strategy"),
		}
	}

	chainID, err := strconv.ParseUint(p.ChainID, 10, 64)
	if err != nil {
		respondError(w, domain.NewError(domain.ErrValidation, "invalid chainId"))
		return
	}
	token, owner := p.Token, p.Owner
	if token == "" || owner == "" {
		respondError(w, domain.NewError(domain.ErrValidation, "token and owner are required"))
		return
	}
	amount, err := domain.ParseAmount(p.Amount)
	if err != nil {
		respondError(w, domain.WrapError(domain.ErrValidation, "invalid amount", err))
		return
	}
	var strategy domain.ApprovalStrategy
	if p.Strategy != "" {
		if strategy, err = domain.ParseApprovalStrategy(p.Strategy); err != nil {
			respondError(w, domain.WrapError(domain.ErrValidation, "invalid strategy", err))
			return
		}
	}

	status, err := s.approvals.Check(r.Context(), chainID, token, owner, amount, strategy)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, status)
}

// approvalExecuteRequest asks for an unsigned approval payload; signing and
// submission stay with the caller or the execution coordinator.
type approvalExecuteRequest struct {
	ChainID  uint64                  `json:"chainId"`
	Token    string                  `json:"token"`
	Amount   string                  `json:"amount"`
	Strategy domain.ApprovalStrategy `json:"strategy,omitempty"`
}

func (s *Server) handleApprovalExecute(w http.ResponseWriter, r *http.Request) {
	var req approvalExecuteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		respondError(w, domain.WrapError(domain.ErrValidation, "invalid amount", err))
		return
	}
	spender, err := s.approvals.SpenderFor(r.Context(), req.ChainID, req.Strategy)
	if err != nil {
		respondError(w, err)
		return
	}
	tx, err := approval.BuildApprovalTx(req.Token, spender.Hex(), amount)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, map[string]any{
		"transaction": tx,
		"spender":     spender.Hex(),
		"chainId":     req.ChainID,
	})
}

// chainEntry is one row of /universal-swap/supported-chains.
type chainEntry struct {
	ChainID        uint64   `json:"chainId"`
	Name           string   `json:"name"`
	NativeCurrency string   `json:"nativeCurrency,omitempty"`
	Aggregators    []string `json:"aggregators"`
}

func (s *Server) handleSupportedChains(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.SupportedChains()
	entries := make([]chainEntry, 0, len(ids))
	for _, id := range ids {
		entry := chainEntry{
			ChainID:     id,
			Name:        chains.Name(id),
			Aggregators: s.orchestrator.AggregatorNamesForChain(id),
		}
		if info, ok := s.chainList.Lookup(r.Context(), id); ok {
			entry.Name = info.Name
			entry.NativeCurrency = info.NativeCurrency.Symbol
		}
		entries = append(entries, entry)
	}
	respond(w, entries)
}

func (s *Server) handleAggregators(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("chainId"); v != "" {
		chainID, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, domain.NewError(domain.ErrValidation, "invalid chainId"))
			return
		}
		respond(w, map[string]any{
			"chainId":     chainID,
			"aggregators": s.orchestrator.AggregatorNamesForChain(chainID),
		})
		return
	}

	categories := map[string][]string{
		"evm":    s.classifier.ProviderNames(domain.CategoryEVMAggregator),
		"meta":   s.classifier.ProviderNames(domain.CategoryMetaAggregator),
		"solana": s.classifier.ProviderNames(domain.CategorySolanaRouter),
		"native": s.classifier.ProviderNames(domain.CategoryNativeRouter),
	}
	respond(w, categories)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"providers": s.orchestrator.HealthSummary(r.Context()),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req domain.UniversalSwapRequest
	if r.Method == http.MethodGet {
		if !analyzeFromQuery(w, r, &req) {
			return
		}
	} else if !decodeBody(w, r, &req) {
		return
	}
	analysis, err := s.classifier.Analyze(&req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, analysis)
}

// analyzeFromQuery reads the classification preview inputs from query
// parameters for bodyless GET callers.
func analyzeFromQuery(w http.ResponseWriter, r *http.Request, req *domain.UniversalSwapRequest) bool {
	q := r.URL.Query()
	fromChain, err := strconv.ParseUint(q.Get("fromChain"), 10, 64)
	if err != nil {
		respondError(w, domain.NewError(domain.ErrValidation, "invalid fromChain"))
		return false
	}
	toChain, err := strconv.ParseUint(q.Get("toChain"), 10, 64)
	if err != nil {
		respondError(w, domain.NewError(domain.ErrValidation, "invalid toChain"))
		return false
	}
	req.From = domain.ChainRef{Chain: fromChain, Ecosystem: domain.Ecosystem(q.Get("fromEcosystem"))}
	req.To = domain.ChainRef{Chain: toChain, Ecosystem: domain.Ecosystem(q.Get("toEcosystem"))}
	req.SellToken = q.Get("sellToken")
	req.BuyToken = q.Get("buyToken")
	req.SellAmount = q.Get("sellAmount")
	if v := q.Get("swapType"); v != "" {
		st, err := domain.ParseSwapType(v)
		if err != nil {
			respondError(w, domain.WrapError(domain.ErrValidation, "invalid swapType", err))
			return false
		}
		req.SwapType = st
	}
	return true
}

// ecosystemEntry describes one supported ecosystem for discovery clients.
type ecosystemEntry struct {
	Ecosystem  domain.Ecosystem `json:"ecosystem"`
	EVMLike    bool             `json:"evmLike"`
	NativeLike bool             `json:"nativeLike"`
}

func (s *Server) handleEcosystems(w http.ResponseWriter, _ *http.Request) {
	all := []domain.Ecosystem{
		domain.EcosystemEVM, domain.EcosystemSolana, domain.EcosystemCosmos,
		domain.EcosystemBitcoin, domain.EcosystemSubstrate, domain.EcosystemNear,
		domain.EcosystemTerra, domain.EcosystemAvalanche, domain.EcosystemTHORChain,
		domain.EcosystemMaya,
	}
	entries := make([]ecosystemEntry, 0, len(all))
	for _, e := range all {
		entries = append(entries, ecosystemEntry{
			Ecosystem:  e,
			EVMLike:    e.EVMLike(),
			NativeLike: e.NativeLike(),
		})
	}
	respond(w, entries)
}
