package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"perpvault/adapters"
	"perpvault/config"
	"perpvault/core/events"
	"perpvault/observability/logging"
	telemetry "perpvault/observability/otel"
	"perpvault/server"
	"perpvault/storage"
	"perpvault/storage/journal"
	"perpvault/vault"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "vaultd.yaml", "path to vaultd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VAULTD_ENV"))
	logger := logging.Setup("vaultd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "vaultd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("vaultd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("vaultd: load config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("vaultd: create data dir: %v", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		log.Fatalf("vaultd: open state database: %v", err)
	}
	defer db.Close()
	store := storage.NewVaultStore(db)

	var emitter events.Emitter = events.NoopEmitter{}
	var eventJournal *journal.Journal
	if strings.TrimSpace(cfg.JournalPath) != "" {
		eventJournal, err = journal.Open(cfg.JournalPath)
		if err != nil {
			log.Fatalf("vaultd: open journal: %v", err)
		}
		defer eventJournal.Close()
		emitter = eventJournal
	}

	vaultAddr := common.HexToAddress(cfg.VaultAddress)
	govAddr := common.HexToAddress(cfg.GovAddress)
	routerAddr := common.HexToAddress(cfg.RouterAddress)
	usdgAddr := common.HexToAddress(cfg.UsdgAddress)

	// development wiring: in-memory custody, debt token, and a static oracle;
	// production deployments substitute real adapters here
	memLedger := adapters.NewMemoryLedger()
	custody := &adapters.OwnedLedger{MemoryLedger: memLedger, Owner: vaultAddr}
	usdg := adapters.NewMemoryDebtToken(memLedger, usdgAddr)
	oracle := adapters.NewStaticOracle()

	v := vault.New(vaultAddr, govAddr, custody, vault.WithEmitter(emitter))
	liquidationFee, ok := new(big.Int).SetString(valueOrZero(cfg.Fees.LiquidationFeeUsd), 10)
	if !ok {
		log.Fatalf("vaultd: invalid liquidation fee %q", cfg.Fees.LiquidationFeeUsd)
	}
	if err := v.Initialize(routerAddr, usdg, usdgAddr, oracle, liquidationFee, cfg.Funding.RateFactor, cfg.Funding.StableRateFactor); err != nil {
		log.Fatalf("vaultd: initialize vault: %v", err)
	}
	if err := v.SetFundingRate(int64(cfg.Funding.Interval.Seconds()), cfg.Funding.RateFactor, cfg.Funding.StableRateFactor); err != nil {
		log.Fatalf("vaultd: configure funding: %v", err)
	}
	if err := v.SetFees(
		cfg.Fees.TaxBasisPoints, cfg.Fees.StableTaxBasisPoints, cfg.Fees.MintBurnFeeBasisPoints,
		cfg.Fees.SwapFeeBasisPoints, cfg.Fees.StableSwapFeeBasisPoints, cfg.Fees.MarginFeeBasisPoints,
		liquidationFee, int64(cfg.Fees.MinProfitTime.Seconds()), cfg.Fees.HasDynamicFees,
	); err != nil {
		log.Fatalf("vaultd: configure fees: %v", err)
	}

	restored, err := store.Load(v)
	if err != nil {
		log.Fatalf("vaultd: restore state: %v", err)
	}
	if restored {
		logger.Info("state restored from snapshot")
	} else if strings.TrimSpace(cfg.MarketsFile) != "" {
		if err := applyMarkets(v, oracle, cfg.MarketsFile); err != nil {
			log.Fatalf("vaultd: apply markets: %v", err)
		}
		logger.Info("markets applied", "file", cfg.MarketsFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go snapshotLoop(ctx, logger, store, v, cfg.Snapshot.Interval.Duration)

	srv := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		AdminToken:    cfg.AdminToken,
		QueryRateLimit: server.RateLimit{
			RequestsPerMinute: cfg.QueryRateLimit.RequestsPerMinute,
			Burst:             cfg.QueryRateLimit.Burst,
		},
	}, v, eventJournal, logger)

	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("vaultd: serve: %v", err)
	}

	if err := store.Save(v); err != nil {
		logger.Error("final snapshot failed", "error", err)
	} else {
		logger.Info("state persisted, shutting down")
	}
}

func valueOrZero(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "0"
	}
	return strings.TrimSpace(raw)
}

func applyMarkets(v *vault.Vault, oracle *adapters.StaticOracle, path string) error {
	markets, err := config.LoadMarkets(path)
	if err != nil {
		return err
	}
	one := new(big.Int).Set(vault.PricePrecision)
	for _, token := range markets.Tokens {
		addr := common.HexToAddress(token.Address)
		// seed a unit price so registration's oracle probe succeeds before
		// real prices are pushed
		oracle.SetPrice(addr, one, one)
		maxUsdg, ok := new(big.Int).SetString(valueOrZero(token.MaxUsdgAmount), 10)
		if !ok {
			return errMarket(token.Symbol, "MaxUsdgAmount")
		}
		if err := v.SetTokenConfig(addr, token.Decimals, token.Weight, token.MinProfitBps, maxUsdg, token.IsStable, token.IsShortable); err != nil {
			return err
		}
		if buffer, ok := new(big.Int).SetString(valueOrZero(token.BufferAmount), 10); ok {
			v.SetBufferAmount(addr, buffer)
		} else {
			return errMarket(token.Symbol, "BufferAmount")
		}
		if maxShort, ok := new(big.Int).SetString(valueOrZero(token.MaxGlobalShortSize), 10); ok {
			v.SetMaxGlobalShortSize(addr, maxShort)
		} else {
			return errMarket(token.Symbol, "MaxGlobalShortSize")
		}
	}
	return nil
}

type marketFieldError struct {
	symbol, field string
}

func (e marketFieldError) Error() string {
	return "invalid " + e.field + " for market " + e.symbol
}

func errMarket(symbol, field string) error {
	return marketFieldError{symbol: symbol, field: field}
}

func snapshotLoop(ctx context.Context, logger *slog.Logger, store *storage.VaultStore, v *vault.Vault, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Save(v); err != nil {
				logger.Error("periodic snapshot failed", "error", err)
			}
		}
	}
}
