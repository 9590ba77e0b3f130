package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"lingua.app/internal/auth"
	"lingua.app/internal/config"
	"lingua.app/internal/httpapi"
	"lingua.app/internal/obs"
)

var version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()

	ctx := context.Background()

	// Postgres when a DSN is configured, in-memory store otherwise.
	var (
		db    *sql.DB
		store auth.Store
	)
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		store, err = auth.NewPGStore(db)
		if err != nil {
			log.Fatalf("pg store: %v", err)
		}
	} else {
		log.Println("LINGUA_PG_DSN not set, using in-memory store")
		store = auth.NewMemoryStore()
	}

	// Redis-backed revocation when configured, process-local otherwise.
	var (
		registry auth.RevocationRegistry = auth.NewMemoryRegistry()
		cache    httpapi.Pinger
	)
	if cfg.RedisURL != "" {
		redisReg, err := auth.NewRedisRegistry(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis registry: %v", err)
		}
		defer redisReg.Close()
		registry = redisReg
		cache = redisReg
	}

	svc, err := auth.NewService(store, registry, []byte(cfg.AuthSecret),
		auth.WithIssuer(cfg.Issuer),
		auth.WithAccessTTL(cfg.AccessTTL),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	if err := svc.EnsureBuiltins(ctx); err != nil {
		log.Fatalf("seed builtins: %v", err)
	}

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db, Cache: cache}, version, httpapi.Options{
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting lingua-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
