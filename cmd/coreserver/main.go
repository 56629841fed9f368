// Package main runs the core-defense simulation server: the tick loop, the
// gRPC command service, snapshot persistence, and the optional event
// stream and Lua hooks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/coredefense/internal/config"
	"github.com/cory-johannsen/coredefense/internal/eventstream"
	"github.com/cory-johannsen/coredefense/internal/game/dice"
	"github.com/cory-johannsen/coredefense/internal/game/difficulty"
	"github.com/cory-johannsen/coredefense/internal/game/events"
	"github.com/cory-johannsen/coredefense/internal/game/structure"
	"github.com/cory-johannsen/coredefense/internal/game/wave"
	"github.com/cory-johannsen/coredefense/internal/gameserver"
	"github.com/cory-johannsen/coredefense/internal/observability"
	"github.com/cory-johannsen/coredefense/internal/scripting"
	"github.com/cory-johannsen/coredefense/internal/server"
	"github.com/cory-johannsen/coredefense/internal/storage"
	"github.com/cory-johannsen/coredefense/internal/storage/postgres"
	"github.com/cory-johannsen/coredefense/internal/storage/sqlite"
)

const (
	snapshotSlot = "default"
	saveBackoff  = 2 * time.Second
	flushTimeout = 5 * time.Second
	loadTimeout  = 10 * time.Second
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	fresh := flag.Bool("fresh", false, "ignore any stored snapshot and start a new game")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting core server",
		zap.String("mode", cfg.Server.Mode),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("grpc_addr", cfg.GRPC.Addr()),
	)

	tiers, catalog, err := loadContent(cfg.Server.ContentDir, logger)
	if err != nil {
		logger.Fatal("loading content", zap.Error(err))
	}

	var src dice.Source = dice.NewCryptoSource()
	if cfg.Simulation.Seed != 0 {
		src = dice.NewSeededSource(cfg.Simulation.Seed)
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("opening snapshot store", zap.Error(err))
	}
	defer closeStore()

	persister := storage.NewPersister(store, saveBackoff, logger)
	bus := events.NewBus(logger)
	sim := gameserver.NewSimulation(gameserver.SettingsFrom(cfg.Simulation), gameserver.Deps{
		Tiers:     tiers,
		Catalog:   catalog,
		Source:    src,
		Sink:      bus,
		Snapshots: persister.Submit,
		Logger:    logger,
	})
	if !*fresh {
		if err := restore(ctx, sim, store, logger); err != nil {
			logger.Fatal("restoring snapshot", zap.Error(err))
		}
	}

	// The persister outlives the lifecycle so the simulation's final
	// snapshot is written after the tick loop has stopped.
	persistCtx, stopPersist := context.WithCancel(ctx)
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		persister.Run(persistCtx, flushTimeout)
	}()

	lifecycle := server.NewLifecycle(logger)

	if cfg.Scripting.ScriptDir != "" {
		hooks, err := scripting.Load(cfg.Scripting.ScriptDir, cfg.Scripting.InstructionLimit,
			dice.NewRoller(dice.NewCryptoSource(), logger), logger)
		if err != nil {
			logger.Fatal("loading lua hooks", zap.Error(err))
		}
		defer hooks.Close()
		lifecycle.Add("lua-hooks", &server.FuncService{
			StartFn: func(ctx context.Context) error {
				hooks.Run(ctx, bus, cfg.Events.SubscriberBuffer)
				return nil
			},
		})
	}

	if cfg.Events.WebsocketAddr != "" {
		stream := eventstream.NewServer(bus, cfg.Events.SubscriberBuffer, logger)
		lifecycle.Add("event-stream", &server.FuncService{
			StartFn: func(ctx context.Context) error { return stream.Start(ctx, cfg.Events.WebsocketAddr) },
			StopFn:  stream.Stop,
		})
	}

	grpcServer := grpc.NewServer()
	gameserver.NewCommandServer(sim, bus, cfg.Events.SubscriberBuffer, logger).Register(grpcServer)
	lifecycle.Add("grpc", &server.FuncService{
		StartFn: func(context.Context) error {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.GRPC.Addr(), err)
			}
			logger.Info("gRPC command service listening", zap.String("addr", lis.Addr().String()))
			return grpcServer.Serve(lis)
		},
		StopFn: grpcServer.GracefulStop,
	})

	lifecycle.Add("simulation", &server.FuncService{StartFn: sim.Run})

	logger.Info("core server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Int("tick_rate", cfg.Simulation.TickRate),
		zap.Strings("structure_types", catalog.IDs()),
	)

	runErr := lifecycle.Run(ctx)
	stopPersist()
	<-persistDone
	saved, failed := persister.Stats()
	logger.Info("snapshots written", zap.Int64("saved", saved), zap.Int64("failed", failed))
	if runErr != nil {
		logger.Fatal("server error", zap.Error(runErr))
	}
}

// loadContent reads tier and structure tables from dir/tiers and
// dir/structures, falling back to the built-in tables when dir is empty.
func loadContent(dir string, logger *zap.Logger) (*wave.TierTable, *structure.Catalog, error) {
	if dir == "" {
		logger.Info("using built-in content tables")
		return wave.DefaultTierTable(), structure.DefaultCatalog(), nil
	}
	tiers, err := wave.LoadTierTable(filepath.Join(dir, "tiers"), difficulty.MaxTier)
	if err != nil {
		return nil, nil, fmt.Errorf("tier tables: %w", err)
	}
	catalog, err := structure.LoadCatalog(filepath.Join(dir, "structures"))
	if err != nil {
		return nil, nil, fmt.Errorf("structure types: %w", err)
	}
	logger.Info("content loaded", zap.String("dir", dir), zap.Int("structure_types", len(catalog.IDs())))
	return tiers, catalog, nil
}

// openStore builds the configured snapshot store. The returned func
// releases it.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "postgres":
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := pool.Ready(ctx, loadTimeout); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		return pool.Store(snapshotSlot), pool.Close, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.Warn("closing sqlite store", zap.Error(err))
			}
		}
		return &retainingStore{Store: db, keep: cfg.Storage.Retain, logger: logger}, closeDB, nil
	case "file":
		return storage.NewFileStore(cfg.Storage.Path), func() {}, nil
	default:
		return storage.NopStore{}, func() {}, nil
	}
}

// retainingStore prunes sqlite history after every save.
type retainingStore struct {
	*sqlite.Store
	keep   int
	logger *zap.Logger
}

func (r *retainingStore) Save(ctx context.Context, s *storage.Snapshot) error {
	if err := r.Store.Save(ctx, s); err != nil {
		return err
	}
	if n, err := r.Prune(ctx, r.keep); err != nil {
		r.logger.Warn("pruning snapshots", zap.Error(err))
	} else if n > 0 {
		r.logger.Debug("pruned snapshots", zap.Int64("deleted", n))
	}
	return nil
}

func restore(ctx context.Context, sim *gameserver.Simulation, store storage.Store, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	snap, err := store.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Info("no snapshot found, starting a new game")
		return nil
	}
	if err != nil {
		return err
	}
	sim.Restore(snap)
	return nil
}
