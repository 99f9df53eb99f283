package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"stablemint/config"
	"stablemint/crypto"
	"stablemint/engine"
	"stablemint/journal"
	"stablemint/ledger"
	"stablemint/observability/logging"
	"stablemint/observability/metrics"
	stableotel "stablemint/observability/otel"
	"stablemint/oracle"
	"stablemint/server"
	"stablemint/storage"
	"stablemint/token"
)

const serviceName = "stablemintd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	policyFile := flag.String("policy", "", "Path to the serving policy (overrides config PolicyFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(serviceName, cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdown, err := stableotel.Init(ctx, stableotel.Config{
			ServiceName: serviceName,
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("telemetry init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
	}

	custody, err := crypto.DecodeAddress(cfg.EngineAddress)
	if err != nil {
		logger.Error("invalid engine address", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data dir", "error", err)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("open state database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := ledger.NewStore(db)

	stable, err := token.NewModule(db, cfg.StableSymbol, custody)
	if err != nil {
		logger.Error("init stable token", "error", err)
		os.Exit(1)
	}
	ctrl, err := token.NewController(stable, custody)
	if err != nil {
		logger.Error("init stable controller", "error", err)
		os.Exit(1)
	}

	symbols := make([]string, 0, len(cfg.Collateral))
	adapters := make([]*oracle.Adapter, 0, len(cfg.Collateral))
	transferrers := make(map[string]token.Transferrer, len(cfg.Collateral))
	for _, col := range cfg.Collateral {
		symbol := strings.ToUpper(strings.TrimSpace(col.Symbol))
		feed, err := buildFeed(col)
		if err != nil {
			logger.Error("init price feed", "asset", symbol, "error", err)
			os.Exit(1)
		}
		adapter, err := oracle.NewAdapter(symbol, feed)
		if err != nil {
			logger.Error("init adapter", "asset", symbol, "error", err)
			os.Exit(1)
		}
		module, err := token.NewModule(db, symbol, custody)
		if err != nil {
			logger.Error("init collateral token", "asset", symbol, "error", err)
			os.Exit(1)
		}
		symbols = append(symbols, symbol)
		adapters = append(adapters, adapter)
		transferrers[symbol] = module.Bound(custody)
		if col.FeedKind == "manual" {
			metrics.Engine().SetCollateralPrice(symbol, float64(col.InitialPriceUSD))
		}
		logger.Info("collateral configured",
			"asset", symbol,
			"feed", col.FeedKind,
			logging.MaskField("feed_api_key", os.Getenv(col.FeedAPIKeyEnv)),
		)
	}

	eng, err := engine.NewEngine(custody, store, symbols, adapters, transferrers, ctrl)
	if err != nil {
		logger.Error("init engine", "error", err)
		os.Exit(1)
	}

	jnl, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		logger.Error("open journal", "error", err)
		os.Exit(1)
	}

	policyPath := cfg.PolicyFile
	if strings.TrimSpace(*policyFile) != "" {
		policyPath = *policyFile
	}
	policy, err := config.LoadPolicy(policyPath)
	if err != nil {
		logger.Error("load policy", "error", err)
		os.Exit(1)
	}

	var idem *server.IdempotencyStore
	if policy.Idempotency.Path != "" {
		idem, err = server.OpenIdempotencyStore(policy.Idempotency.Path, policy.Idempotency.TTL())
		if err != nil {
			logger.Error("open idempotency store", "error", err)
			os.Exit(1)
		}
		defer idem.Close()
	}

	srv := server.New(server.Config{
		Engine:      eng,
		Journal:     jnl,
		Policy:      policy,
		Idempotency: idem,
		Logger:      logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.ListenAddress, "custody", custody.String())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}
}

func buildFeed(col config.CollateralConfig) (oracle.PriceFeed, error) {
	switch strings.ToLower(strings.TrimSpace(col.FeedKind)) {
	case "manual":
		feed := oracle.NewManualFeed()
		feed.SetUSD(col.InitialPriceUSD, time.Now())
		return feed, nil
	case "http":
		client := &http.Client{Timeout: 10 * time.Second}
		apiKey := os.Getenv(col.FeedAPIKeyEnv)
		return oracle.NewHTTPFeed(client, col.FeedEndpoint, col.Symbol, apiKey), nil
	}
	return nil, fmt.Errorf("unknown feed kind %q", col.FeedKind)
}
