// swapgated is the swap aggregation gateway daemon. It wires the provider
// adapters into the registry, composes the quoting and execution services and
// serves the HTTP API until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/omnidex/swapgate/internal/approval"
	"github.com/omnidex/swapgate/internal/chains"
	"github.com/omnidex/swapgate/internal/config"
	"github.com/omnidex/swapgate/internal/domain"
	"github.com/omnidex/swapgate/internal/evmrpc"
	"github.com/omnidex/swapgate/internal/execution"
	"github.com/omnidex/swapgate/internal/precheck"
	"github.com/omnidex/swapgate/internal/provider"
	"github.com/omnidex/swapgate/internal/provider/jupiter"
	"github.com/omnidex/swapgate/internal/provider/lifi"
	"github.com/omnidex/swapgate/internal/provider/odos"
	"github.com/omnidex/swapgate/internal/provider/thorchain"
	"github.com/omnidex/swapgate/internal/provider/zerox"
	"github.com/omnidex/swapgate/internal/quote"
	"github.com/omnidex/swapgate/internal/routing"
	"github.com/omnidex/swapgate/internal/server"
	"github.com/omnidex/swapgate/internal/upstream"
)

const shutdownGrace = 15 * time.Second

func main() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, logLevel(), true)))

	if err := run(); err != nil {
		log.Error("Gateway exited", "err", err)
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err == nil {
			return lvl
		}
	}
	return log.LevelInfo
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	pool := evmrpc.NewPool(cfg.RPCURLs)
	defer pool.Close()

	registry := provider.NewRegistry()
	health := provider.NewHealthMonitor()
	quotes := routing.NewSupportedQuoteCache()
	classifier := routing.NewClassifier(registry, quotes)
	orchestrator := quote.NewOrchestrator(registry, health, quotes)

	zx := zerox.New("", cfg.ZeroXAPIKey, upstream.DefaultTimeout)
	od := odos.New("", cfg.OdosReferralCode, upstream.DefaultTimeout)
	jup := jupiter.New("", cfg.JupiterAPIKey, upstream.DefaultTimeout)
	thor := thorchain.New("", upstream.DefaultTimeout)

	approvals := approval.NewChecker(
		func(chainID uint64) (approval.ContractBackend, error) { return pool.Client(chainID) },
		zx.ProbeAllowanceTarget,
	)
	prechecker := precheck.NewChecker(classifier, orchestrator, approvals,
		func(chainID uint64) (precheck.Backend, error) { return pool.Client(chainID) })
	coordinator := execution.NewCoordinator(orchestrator, approvals, prechecker,
		func(chainID uint64) (execution.Backend, error) { return pool.Client(chainID) })

	lf := lifi.New("", cfg.LiFiAPIKey, upstream.DefaultTimeout,
		func(ctx context.Context, chainID uint64, tx *domain.TransactionRequest, signer provider.SignerContext) (string, error) {
			return coordinator.SubmitTransaction(ctx, chainID, tx, signer)
		})

	registry.RegisterEVM(zx)
	registry.RegisterEVM(od)
	registry.RegisterMeta(lf)
	registry.RegisterSolana(jup)
	registry.RegisterNative(thor)
	registry.OnRegistrationComplete()

	chainList := chains.NewChainList()

	srv := server.New(cfg, registry, classifier, orchestrator, approvals, prechecker, coordinator, chainList)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Gateway listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("Shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("Gateway stopped")
	return nil
}
