// Package main provides the compliance registry server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/glebarez/sqlite"
	"github.com/golang/glog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ctsr-project/ctsr/pkg/audit"
	"github.com/ctsr-project/ctsr/pkg/confirmations"
	"github.com/ctsr-project/ctsr/pkg/export"
	"github.com/ctsr-project/ctsr/pkg/registry"
	"github.com/ctsr-project/ctsr/pkg/trials"
)

func main() {
	var (
		listenAddr   string
		databaseType string
		databaseDSN  string
	)

	flag.StringVar(&listenAddr, "listen", ":8080", "Address to listen on")
	flag.StringVar(&databaseType, "db-type", "", "Database type (postgres or sqlite)")
	flag.StringVar(&databaseDSN, "db-dsn", "", "Database connection string")
	flag.Parse()

	_ = flag.Set("logtostderr", "true")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	db, err := setupDatabase(databaseType, databaseDSN)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	recorder := audit.NewRecorder()
	auditStore := audit.NewStore(db)
	registryStore := registry.NewStore(db, recorder)
	trialStore := trials.NewStore(db, recorder)
	engine := confirmations.NewEngine(confirmations.ConfigFromEnv(), trialStore, recorder)
	assembler := export.NewAssembler(engine)

	for name, migrate := range map[string]func() error{
		"audit":         auditStore.AutoMigrate,
		"registry":      registryStore.AutoMigrate,
		"trials":        trialStore.AutoMigrate,
		"confirmations": engine.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			glog.Fatalf("Failed to migrate %s schema: %v", name, err)
		}
	}
	if err := registry.SeedLookups(db); err != nil {
		glog.Fatalf("Failed to seed lookup tables: %v", err)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-Email", "X-User-Role"},
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Mount("/", registry.NewRouter(registryStore))
		r.Mount("/trials", trials.NewRouter(trialStore))
		r.Mount("/confirmations", confirmations.NewRouter(engine))
		r.Mount("/audit", audit.NewRouter(auditStore))
		r.Mount("/exports", export.NewRouter(assembler))
	})

	scheduler := confirmations.NewScheduler(engine, logger)
	go scheduler.Run(ctx)

	logger.Info("compliance registry server ready", "listen", listenAddr)

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("compliance registry server stopped")
}

func setupDatabase(dbType, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("database DSN is required (use -db-dsn flag or DATABASE_DSN environment variable)")
		}
	}
	if dbType == "" {
		dbType = os.Getenv("DATABASE_TYPE")
		if dbType == "" {
			dbType = "postgres"
		}
	}

	switch dbType {
	case "postgres":
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
		return db, nil
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type %q (expected postgres or sqlite)", dbType)
	}
}
