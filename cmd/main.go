package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Marketen/exitbus-verifier/internal/adapters"
	"github.com/Marketen/exitbus-verifier/internal/api"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/application/services"
	"github.com/Marketen/exitbus-verifier/internal/clproof"
	"github.com/Marketen/exitbus-verifier/internal/config"
	"github.com/Marketen/exitbus-verifier/internal/logger"
	"github.com/Marketen/exitbus-verifier/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}

	logger.Info("Starting exitbus-verifier")
	logger.Info("Beacon node URL: %s", cfg.BeaconNodeURL)
	logger.Info("Execution node URL: %s", cfg.ExecutionNodeURL)
	logger.Info("Poll interval: %s", cfg.PollInterval)
	logger.Info("Pivot slot: %d, first supported slot: %d", cfg.Proofs.PivotSlot, cfg.Proofs.FirstSupportedSlot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := adapters.OpenLevelDBStore(cfg.DBPath)
	if err != nil {
		logger.Error("Failed to open state store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	var beaconAdapter *adapters.BeaconHTTPAdapter
	if cfg.BeaconNodeURL != "" {
		beaconAdapter, err = adapters.NewBeaconHTTPAdapter(cfg.BeaconNodeURL, cfg.SecondsPerSlot)
		if err != nil {
			logger.Error("Failed to create beacon HTTP adapter: %v", err)
			os.Exit(1)
		}
	}

	// Prefer the beacon roots contract; fall back to parent roots served by
	// the beacon node.
	var oracle ports.BeaconBlockRootOracle
	if cfg.ExecutionNodeURL != "" {
		elOracle, client, err := adapters.DialExecutionRootOracle(ctx, cfg.ExecutionNodeURL)
		if err != nil {
			logger.Error("Failed to connect execution node: %v", err)
			os.Exit(1)
		}
		defer client.Close()
		oracle = elOracle
		logger.Info("Using beacon roots contract at %s", adapters.BeaconRootsAddress.Hex())
	} else {
		oracle = beaconAdapter
		logger.Warn("No execution node configured; trusting beacon node for block roots")
	}

	verifier, err := clproof.New(cfg.Proofs, oracle)
	if err != nil {
		logger.Error("Invalid proof configuration: %v", err)
		os.Exit(1)
	}

	var events ports.EventSink = adapters.NewLogEventSink()
	if cfg.EnableMetrics {
		metrics.Register()
		events = metrics.EventSink(events)
	}
	requestSink := adapters.NewLogRequestSink()

	trigger, err := services.NewTriggerGateway(store, events, requestSink, services.SystemClock, cfg.TriggerLimits)
	if err != nil {
		logger.Error("Failed to create trigger gateway: %v", err)
		os.Exit(1)
	}
	consolidation, err := services.NewConsolidationGateway(store, events, requestSink, services.SystemClock, cfg.ConsolidationLimits)
	if err != nil {
		logger.Error("Failed to create consolidation gateway: %v", err)
		os.Exit(1)
	}
	exitBus, err := services.NewExitBus(store, events, trigger, services.SystemClock, cfg.ExitBusLimits, cfg.MaxValidatorsPerReport)
	if err != nil {
		logger.Error("Failed to create exit bus: %v", err)
		os.Exit(1)
	}
	if cfg.EnableMetrics {
		for _, c := range []services.LimitController{exitBus, trigger, consolidation} {
			metrics.WatchLimiter(c.LimiterName(), func() uint64 { return c.ExitRequestLimit().CurrentLimit })
		}
	}

	backend := api.Backend{
		Verifier:      verifier,
		ExitBus:       exitBus,
		Trigger:       trigger,
		Consolidation: consolidation,
	}
	var headSource ports.BeaconChainAdapter
	if beaconAdapter != nil {
		backend.Beacon = beaconAdapter
		headSource = beaconAdapter
	}

	scheduler := services.NewDeliveryScheduler(exitBus, headSource, cfg.PollInterval)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.New(backend, api.Options{AllowedOrigins: cfg.AllowedOrigins, EnableMetrics: cfg.EnableMetrics}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle SIGINT / SIGTERM for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		scheduler.Run(ctx)
	}()

	go func() {
		logger.Info("API listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed: %v", err)
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	logger.Warn("Received signal %s, shutting down...", sig)

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("API shutdown: %v", err)
	}
}
