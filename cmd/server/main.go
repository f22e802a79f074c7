package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"bank-ledger/internal/config"
	"bank-ledger/internal/httpapi"
	"bank-ledger/internal/ledger"
	"bank-ledger/internal/lock"
	"bank-ledger/internal/store"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sasha-s/go-deadlock"
)

func main() {
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[startup] config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	log.Printf("[startup] begin addr=%s store=%s locks=%s migrate=%t",
		cfg.HTTPAddr, cfg.Store, cfg.LockBackend, cfg.Migrate)

	// Lock-order tracking serialises every Lock call behind a global mutex
	// and exits the process on a stall, so it is opt-in.
	deadlock.Opts.Disable = !cfg.DeadlockDetect
	deadlock.Opts.DeadlockTimeout = cfg.DeadlockTimeout
	if cfg.DeadlockDetect {
		log.Printf("[startup] deadlock detection on timeout=%s", cfg.DeadlockTimeout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Startup context
	startCtx, startCancel := context.WithTimeout(ctx, 15*time.Second)
	defer startCancel()

	var st ledger.Store
	switch cfg.Store {
	case config.StoreMemory:
		log.Printf("[startup] using in-memory store")
		st = store.NewMemory()
	default:
		pool, err := openPool(startCtx, cfg)
		if err != nil {
			log.Fatalf("[startup] %v", err)
		}
		defer pool.Close()

		if cfg.Migrate {
			log.Printf("[startup] running migrations")
			n, err := store.Migrate(startCtx, pool)
			if err != nil {
				log.Fatalf("[startup] migrations failed: %v", err)
			}
			log.Printf("[startup] migrations complete applied=%d", n)
		} else {
			log.Printf("[startup] migrations disabled")
		}
		st = store.New(pool)
	}

	opts := []ledger.Option{ledger.WithLogger(logger)}
	if cfg.LockBackend == config.LockRedis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		log.Printf("[startup] ping redis addr=%s", cfg.RedisAddr)
		if err := rdb.Ping(startCtx).Err(); err != nil {
			log.Fatalf("[startup] redis ping failed: %v", err)
		}
		opts = append(opts, ledger.WithLocker(lock.NewRedis(rdb, lock.DefaultRedisOptions(), logger)))
	}

	engine := ledger.New(st, opts...)
	h := httpapi.NewHandlers(engine, logger)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.Router(h, cfg.MaxInFlight),

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf(
		"[startup] ready in %s, listening on %s",
		time.Since(start).Truncate(time.Millisecond),
		cfg.HTTPAddr,
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[server] listen failed: %v", err)
		}
	case <-ctx.Done():
		log.Printf("[shutdown] signal received, draining for up to %s", cfg.ShutdownTimeout)
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Printf("[shutdown] incomplete: %v", err)
		}
	}
	log.Printf("[shutdown] done")
}

func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	log.Printf("[startup] cpu=%d maxConns=%d", runtime.GOMAXPROCS(0), cfg.MaxConns)

	log.Printf("[startup] parsing DB config")
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.New("parse dsn failed: " + err.Error())
	}

	pcfg.MaxConns = int32(cfg.MaxConns)
	pcfg.MinConns = 1
	pcfg.HealthCheckPeriod = 10 * time.Second
	pcfg.MaxConnLifetime = 30 * time.Minute
	pcfg.MaxConnIdleTime = 5 * time.Minute

	log.Printf("[startup] connecting to DB")
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, errors.New("db connect failed: " + err.Error())
	}

	log.Printf("[startup] ping DB")
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.New("db ping failed: " + err.Error())
	}
	return pool, nil
}
