package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robertarktes/googlepaypasses/internal/app"
	"github.com/robertarktes/googlepaypasses/internal/config"
	httphandler "github.com/robertarktes/googlepaypasses/internal/http"
	"github.com/robertarktes/googlepaypasses/internal/jobs"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"github.com/robertarktes/googlepaypasses/internal/rateLimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg, "googlepaypasses-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLoggerForMode(cfg.Development)

	stores, err := app.OpenStores(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("failed to open stores: %v", err)
	}
	defer stores.Close(context.Background())

	w, err := app.NewWallet(context.Background(), cfg, stores, logger)
	if err != nil {
		log.Fatalf("failed to set up wallet: %v", err)
	}

	deps := httphandler.Deps{
		Organizers:  stores.Catalog,
		Positions:   stores.Repo,
		Events:      stores.Catalog,
		Credentials: w.Credentials,
		Enqueuer:    jobs.NewOutboxEnqueuer(stores.Repo),
		Limiter:     rateLimit.NewRateLimiter(stores.Redis),
		SiteURL:     cfg.SiteURL,
		UserAgent:   cfg.WebhookUserAgent,
		Checks: map[string]httphandler.Pinger{
			"crdb":  stores.Repo,
			"mongo": stores.Catalog,
			"redis": stores.Cache,
		},
		Logger: logger,
	}
	if w.Synchronizer != nil {
		deps.Generator = w.Synchronizer
	}

	r := httphandler.SetupRouter(httphandler.NewHandlers(deps), logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	logger.WithField("addr", cfg.HTTPAddr).Info("api listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
