package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"getmechai/config"
	"getmechai/gateway"
	"getmechai/gateway/middleware"
	"getmechai/ledger"
	"getmechai/observability/logging"
	"getmechai/pinning"
	"getmechai/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chaid: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup("chaid", cfg.Environment)

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open mirror store: %w", err)
	}

	client, err := ledger.NewClient(ledger.ClientConfig{
		RPCEndpoint:     cfg.RPCEndpoint,
		ContractAddress: cfg.ContractAddress,
		ChainID:         cfg.ChainID,
		OperatorKey:     cfg.OperatorKey,
	}, logger)
	if err != nil {
		return fmt.Errorf("ledger client: %w", err)
	}
	defer client.Close()

	discovery := ledger.NewDiscovery(client, logger,
		ledger.WithScanLimit(cfg.ScanLimit),
		ledger.WithScanWorkers(cfg.ScanConcurrency),
	)
	views := ledger.NewAssembler(client, discovery, logger)
	gate := ledger.NewGate(client, logger)
	pinner := pinning.New(pinning.Config{
		BaseURL:   cfg.Pinning.BaseURL,
		JWT:       cfg.Pinning.JWT,
		APIKey:    cfg.Pinning.APIKey,
		APISecret: cfg.Pinning.APISecret,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewRateLimiter()
	go limiter.Sweep(ctx, time.Minute)

	srv := gateway.NewServer(gateway.Config{
		Logger:    logger,
		Client:    client,
		Discovery: discovery,
		Views:     views,
		Gate:      gate,
		Store:     store,
		Pinner:    pinner,
		Limiter:   limiter,
		Limits: gateway.Limits{
			Read:     middleware.Limit{Requests: cfg.ReadLimit.Requests, Window: cfg.ReadLimit.Window()},
			Mutation: middleware.Limit{Requests: cfg.MutationLimit.Requests, Window: cfg.MutationLimit.Window()},
			Upload:   middleware.Limit{Requests: cfg.UploadLimit.Requests, Window: cfg.UploadLimit.Window()},
		},
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddress)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
