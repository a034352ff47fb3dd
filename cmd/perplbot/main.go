// Command perplbot wires the exchange clients, state tracker, and LLM tool
// loop together into one process. This entry point is illustrative: CLI
// flag parsing, daemonization, and graceful-restart concerns are out of
// scope (see the module layout in SPEC_FULL.md) — a real deployment likely wraps this
// wiring in its own supervisor instead of running it as-is.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ethereum/go-ethereum/common"

	"github.com/perplbot/perplbot/internal/agentloop"
	"github.com/perplbot/perplbot/internal/config"
	"github.com/perplbot/perplbot/internal/contractclient"
	"github.com/perplbot/perplbot/internal/liqsim"
	"github.com/perplbot/perplbot/internal/restclient"
	"github.com/perplbot/perplbot/internal/router"
	"github.com/perplbot/perplbot/internal/statetracker"
	"github.com/perplbot/perplbot/internal/wsclient"
	"github.com/perplbot/perplbot/pkg/types"
)

func main() {
	if err := run(); err != nil {
		slog.Error("perplbot exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	if len(os.Args) > 1 && os.Args[1] == "init" {
		target := "configs/config.yaml"
		if len(os.Args) > 2 {
			target = os.Args[2]
		}
		if err := config.WriteExample(target); err != nil {
			return fmt.Errorf("write example config: %w", err)
		}
		fmt.Printf("wrote example config to %s\n", target)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	contract, err := contractclient.NewClient(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID,
		cfg.Chain.ExchangeAddress, cfg.Wallet.DelegatedAccountAddress,
		cfg.Wallet.OwnerPrivateKey, cfg.Wallet.OperatorPrivateKey)
	if err != nil {
		return fmt.Errorf("connect to chain: %w", err)
	}
	defer contract.Close()

	rest := restclient.NewClient(cfg.API.BaseURL, logger)

	account, err := contract.GetAccountByAddress(ctx, cfg.Wallet.DelegatedAccountAddress)
	if err != nil {
		return fmt.Errorf("resolve account: %w", err)
	}

	authenticated := func() bool { return cfg.API.UseAPI }
	rtr := router.New(rest, contract, authenticated, logger)
	tracker := statetracker.New(cfg.Simulator.MaintenanceMargin, logger)

	tradingFeed := wsclient.NewTradingFeed(cfg.API.WSURL, cfg.Chain.ChainID, func() types.Session {
		return types.Session{}
	}, logger)
	go func() {
		if err := tradingFeed.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("trading feed stopped", "error", err)
		}
	}()
	defer tradingFeed.Close()

	done := make(chan struct{})
	go tracker.RunFrom(tradingFeed, done)
	defer close(done)

	sim := liqsim.New(cfg.Simulator, common.HexToAddress(cfg.Chain.ExchangeAddress), cfg.Chain.RPCURL)

	deps := &agentloop.Deps{
		Router:     rtr,
		Tracker:    tracker,
		Contract:   contract,
		Simulator:  sim,
		Perpetuals: map[int64]agentloop.PerpetualMeta{},
		AccountID:  account.ID,
	}

	riskMonitor := agentloop.NewRiskMonitor(deps, cfg.Simulator.MaintenanceMargin*2, 30*time.Second, logger)
	go riskMonitor.Run(ctx)
	go func() {
		for alert := range riskMonitor.Alerts() {
			logger.Warn("position at risk of liquidation",
				"perpetual_id", alert.PerpetualID, "distance", alert.Distance)
		}
	}()

	client := anthropic.NewClient(option.WithAPIKey(cfg.Agent.AnthropicAPIKey))
	server := agentloop.NewServer(client, deps, logger)

	httpServer := &http.Server{
		Addr:         ":8080",
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // SSE streams hold the connection open for the whole tool loop
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("perplbot listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
