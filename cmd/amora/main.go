package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lucabelli/amora/internal/auth"
	"github.com/lucabelli/amora/internal/config"
	"github.com/lucabelli/amora/internal/generator"
	"github.com/lucabelli/amora/internal/httpapi"
	"github.com/lucabelli/amora/internal/hub"
	"github.com/lucabelli/amora/internal/lifecycle"
	"github.com/lucabelli/amora/internal/matching"
	"github.com/lucabelli/amora/internal/observability"
	"github.com/lucabelli/amora/internal/orchestrator"
	"github.com/lucabelli/amora/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	sessionStore, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("session store init failed: %v", err)
	}
	defer sessionStore.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("session store: in-memory (set DATABASE_URL for postgres)")
	} else {
		log.Printf("session store: postgres")
	}

	gen, err := generator.NewGenerator(generator.Config{
		Mode:    cfg.GeneratorMode,
		HTTPURL: cfg.GeneratorHTTPURL,
	})
	if err != nil {
		log.Fatalf("turn generator init failed: %v", err)
	}

	validator, err := auth.NewValidator(cfg.JWTSecret, cfg.JWTIssuer, cfg.DevTokens)
	if err != nil {
		log.Fatalf("credential validator init failed: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Printf("auth: static dev tokens in use; set AMORA_JWT_SECRET in production")
	}

	scorer := matching.NewScorer(cfg.MatchServiceURL)
	connections := hub.New(cfg.SendBuffer, metrics)

	controller := lifecycle.New(sessionStore, gen, connections, orchestrator.Config{
		TurnBudget:       cfg.TurnBudget,
		Rotation:         orchestrator.RotationPolicy{ModeratorEvery: cfg.ModeratorEvery},
		RetryLimit:       cfg.RetryLimit,
		GenerateTimeout:  cfg.GenerateTimeout,
		RetryBackoffBase: cfg.RetryBackoffBase,
		RetryBackoffCap:  cfg.RetryBackoffCap,
	}, metrics)

	api := httpapi.New(cfg, sessionStore, controller, connections, validator, scorer, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	controller.Shutdown(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
