package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"workmesh/config"
	"workmesh/core/events"
	"workmesh/core/state"
	"workmesh/core/types"
	"workmesh/native/assets"
	"workmesh/native/buyback"
	"workmesh/native/escrow"
	"workmesh/native/mission"
	"workmesh/observability/logging"
	"workmesh/observability/metrics"
	"workmesh/storage"
)

const (
	buybackVaultName = "buyback.vault"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("WMESH_ENV"))
	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("wmeshd", env, logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	engine, err := buildEngine(cfg, db, logger)
	if err != nil {
		logger.Error("Failed to assemble marketplace engine", slog.Any("error", err))
		os.Exit(1)
	}

	feeCfg := engine.FeeConfig()
	logger.Info("marketplace engine ready",
		slog.String("data_dir", cfg.DataDir),
		slog.Uint64("asset_fee_bps", uint64(feeCfg.AssetFeeBps)),
		slog.Uint64("token_fee_bps", uint64(feeCfg.TokenFeeBps)),
		slog.Any("paused_modules", cfg.PausedModules),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	server := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listener started", slog.String("address", cfg.MetricsAddress))
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", slog.Any("error", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("metrics listener shutdown failed", slog.Any("error", err))
	}
}

// buildEngine wires the state manager, asset ledger, buyback adapter, mission
// recorder and escrow engine for one marketplace instance.
func buildEngine(cfg *config.Config, db storage.Database, logger *slog.Logger) (*escrow.Engine, error) {
	manager := state.NewManager(db)
	ledger := assets.NewLedger(manager)

	emitter := events.Multi{metrics.NewEmitter(), &eventLogger{logger: logger}}

	treasury, err := config.DecodeAddress(cfg.TreasuryAddress)
	if err != nil {
		return nil, err
	}
	arbitrator, err := config.DecodeAddress(cfg.ArbitratorAddress)
	if err != nil {
		return nil, err
	}
	owner, err := config.DecodeAddress(cfg.OwnerAddress)
	if err != nil {
		return nil, err
	}

	adapter := buyback.NewEngine()
	adapter.SetLedger(ledger)
	adapter.SetTreasury(treasury)
	adapter.SetVault(state.ModuleAddress(buybackVaultName))
	adapter.SetEmitter(emitter)
	// No swap venue runs in-process; the adapter stays on the remittance
	// path until an operator attaches one.
	adapter.SetRoute(buyback.Route{Intermediate: cfg.BuybackIntermediate})

	recorder := mission.NewRecorder(manager)
	recorder.SetEmitter(emitter)

	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(ledger)
	engine.SetBuyback(adapter)
	engine.SetMissions(recorder)
	engine.SetPauses(cfg)
	engine.SetOwner(owner)
	engine.SetArbitrator(arbitrator)
	engine.SetFeeTreasury(treasury)
	engine.SetEmitter(emitter)
	if err := engine.LoadFeeConfig(cfg.FeeConfig()); err != nil {
		return nil, err
	}
	return engine, nil
}

// eventLogger mirrors every marketplace event onto the structured log.
type eventLogger struct {
	logger *slog.Logger
}

func (l *eventLogger) Emit(evt events.Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	args := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				args = append(args, slog.String(key, value))
			}
		}
	}
	l.logger.Info("event emitted", args...)
}
