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

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"taobridge/config"
	"taobridge/core/events"
	"taobridge/core/types"
	"taobridge/gateway"
	"taobridge/native/bridge"
	"taobridge/native/staking"
	"taobridge/observability/logging"
	"taobridge/observability/metrics"
	"taobridge/services/ingest"
	"taobridge/services/ingest/projection"
	"taobridge/storage"
	"taobridge/storage/statedb"
)

// slotSeconds converts wall time into a block-like height for the staking
// interval. Unix-anchored so heights stay monotonic across restarts.
const slotSeconds = 12

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("BRIDGE_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("bridged", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	admin, err := cfg.AdminAddress()
	if err != nil {
		logger.Error("invalid admin address", slog.Any("error", err))
		os.Exit(1)
	}
	authority, err := cfg.AuthorityAddress()
	if err != nil {
		logger.Error("invalid authority address", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("dir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	state := statedb.New(db)

	engine := bridge.NewEngine(bridge.Config{
		LocalChainID: cfg.LocalChainID,
		Admin:        admin,
		Authority:    authority,
		MaxBatch:     cfg.MaxBatch,
	}, nil)

	if cfg.Staking.Enabled {
		if err := attachStaking(cfg, engine, admin); err != nil {
			logger.Error("failed to configure staking", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if st, ok, err := state.Load(); err != nil {
		logger.Error("failed to load state", slog.Any("error", err))
		os.Exit(1)
	} else if ok {
		engine.ImportState(st)
		logger.Info("state restored",
			slog.Uint64("bridgeNonce", engine.BridgeNonce()),
			slog.Int("processed", engine.ProcessedCount()))
	}

	var store *projection.Store
	if dsn := strings.TrimSpace(cfg.ProjectionDSN); dsn != "" {
		gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			logger.Error("failed to open projection database", slog.Any("error", err))
			os.Exit(1)
		}
		if err := projection.AutoMigrate(gdb); err != nil {
			logger.Error("failed to migrate projection schema", slog.Any("error", err))
			os.Exit(1)
		}
		store = projection.NewStore(gdb, nil)
		logger.Info("projection enabled", logging.MaskField("dsn", dsn))
	}
	engine.SetEmitter(projection.NewProjector(store, logger, eventSink{logger: logger, engine: engine}))

	pipeline := ingest.New(engine, state, logger, metrics.Bridge())
	srv := gateway.New(gateway.Config{
		Engine:     engine,
		Pipeline:   pipeline,
		Projection: store,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("gateway listening", slog.String("addr", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", slog.Any("error", err))
	}
	if err := state.Save(engine.ExportState()); err != nil {
		logger.Error("final checkpoint failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("stopped")
}

// eventSink is the terminal event sink: every committed event becomes one
// structured log line and bumps its counter. Called while the engine holds
// its mutex, so it must not call locked engine methods.
type eventSink struct {
	logger *slog.Logger
	engine *bridge.Engine
}

func (s eventSink) Emit(ev events.Event) {
	s.logger.Info("event", slog.String("type", ev.EventType()))
	switch e := ev.(type) {
	case events.TransferRequested:
		symbol := ""
		if meta, ok := s.engine.Registry().Metadata(e.TokenKey); ok {
			symbol = meta.Symbol
		}
		metrics.Bridge().ObserveTransferRequested(symbol)
		metrics.Bridge().SetBridgeNonce(e.Nonce + 1)
	case events.TokenWrapped:
		metrics.Bridge().ObserveTokenWrapped()
	case events.TokensStaked:
		metrics.Stake().ObserveStake()
	case events.TokensUnstaked:
		metrics.Stake().ObserveUnstake()
	case events.FundsFlushed:
		metrics.Stake().ObserveFlush()
		metrics.Stake().SetNextEpochID(e.EpochID + 1)
	}
}

func attachStaking(cfg *config.Config, engine *bridge.Engine, admin types.Address) error {
	rate, err := cfg.RewardRate()
	if err != nil {
		return err
	}
	participants, err := cfg.ParticipantAddresses()
	if err != nil {
		return err
	}

	stakingEngine := staking.NewEngine(staking.Config{
		Owner:         admin,
		RewardRate:    rate,
		StakeInterval: cfg.Staking.StakeInterval,
	}, staking.NewMemoryFacility(), engine.Accounts())
	stakingEngine.SetHeightSource(func() uint64 {
		return uint64(time.Now().Unix()) / slotSeconds
	})
	for _, participant := range participants {
		if err := stakingEngine.AddParticipant(admin, participant); err != nil {
			return fmt.Errorf("participant %s: %w", participant.Hex(), err)
		}
	}
	return engine.SetStakingPolicy(admin, stakingEngine)
}
