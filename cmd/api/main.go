package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/gamegateway/internal/adapters"
	"github.com/fastprodman/gamegateway/internal/api"
	"github.com/fastprodman/gamegateway/internal/infra/logging"
	"github.com/fastprodman/gamegateway/internal/infra/pgutils"
	"github.com/fastprodman/gamegateway/internal/launcher"
	"github.com/fastprodman/gamegateway/internal/providers"
	"github.com/fastprodman/gamegateway/internal/repos/records"
	"github.com/fastprodman/gamegateway/internal/repos/records/memory"
	pgrecords "github.com/fastprodman/gamegateway/internal/repos/records/postgres"
	redisrecords "github.com/fastprodman/gamegateway/internal/repos/records/redis"
	"github.com/fastprodman/gamegateway/internal/services/catalog"
	"github.com/fastprodman/gamegateway/internal/services/failover"
	"github.com/fastprodman/gamegateway/internal/services/health"
	"github.com/fastprodman/gamegateway/internal/services/ledger"
	"github.com/fastprodman/gamegateway/internal/services/wallet"
	"github.com/fastprodman/gamegateway/pkg/envconf"
	"github.com/fastprodman/gamegateway/pkg/respcache"
	"github.com/fastprodman/gamegateway/pkg/shutdownqueue"
	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg := new(apiConfig)

	err = envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON("gamegateway-api", cfg.LogLevel)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	reg := providers.New(adapters.Known)
	src := providers.NewFileSource(cfg.ProvidersFile, reg)

	err = src.Load()
	if err != nil {
		return fmt.Errorf("load providers: %w", err)
	}

	bg, cancelBg := context.WithCancel(context.Background())
	shutdownqueue.Add("background workers", func(context.Context) error {
		cancelBg()
		return nil
	})

	err = src.Watch(bg)
	if err != nil {
		return fmt.Errorf("watch providers: %w", err)
	}

	client := launcher.NewClient(launcher.NewHTTPClient())
	launch := launcher.New(client)

	// --- Services ---
	monitor := health.NewMonitor(reg, health.NewHTTPProber(client, cfg.Health.ProbePath), health.Options{
		Interval: cfg.Health.ProbeInterval,
		Timeout:  cfg.Health.ProbeTimeout,
	})
	go monitor.Run(bg)

	games := respcache.New[[]adapters.Game](respcache.Options{
		MaxSize:       cfg.Cache.MaxSize,
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	games.Start(bg)
	shutdownqueue.Add("game cache", games.Close)

	cat := catalog.New(reg, launch, games, cfg.Cache.GameListTTL)
	cat.WatchRegistry(bg)

	processor := wallet.New(reg, ledger.New(store))
	router := failover.New(reg, launch, monitor, cfg.AttemptTimeout)

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, api.Services{
		Router:    router,
		Callbacks: processor,
		Health:    monitor,
		Catalog:   cat,
		Cache:     games,
	})

	shutdownqueue.Add("http server", srv.Shutdown)

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started", "port", cfg.Port, "store", cfg.StoreDriver, "providers", len(reg.Enabled()))

	select {
	case <-ctx.Done():
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

// openStore connects the record store named by cfg.StoreDriver and queues its
// shutdown.
func openStore(ctx context.Context, cfg *apiConfig) (records.RecordStore, error) {
	switch cfg.StoreDriver {
	case storePostgres:
		db, err := pgutils.OpenDB(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}

		shutdownqueue.Add("postgres", func(context.Context) error { return db.Close() })

		return pgrecords.New(db), nil

	case storeRedis:
		client := redisrecords.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

		err := client.Ping(ctx).Err()
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}

		shutdownqueue.Add("redis", func(context.Context) error { return client.Close() })

		return redisrecords.New(client, cfg.Redis.KeyPrefix), nil

	case storeMemory:
		slog.Warn("using in-memory record store, balances are lost on restart")

		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
