// Command server runs the operational status HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/constituency-streets/internal/adapter"
	"github.com/constituency-streets/internal/api"
	"github.com/constituency-streets/internal/config"
	"github.com/constituency-streets/internal/logging"
	"github.com/constituency-streets/internal/ratelimit"
	"github.com/constituency-streets/internal/service"
	"github.com/constituency-streets/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))

	db, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.ErrorWithErr("failed to connect to postgres", err)
		os.Exit(1)
	}
	defer db.Close()

	reference := storage.NewReferenceRepository(db)
	postcodes := storage.NewPostcodeRepository(db)
	usageLog := storage.NewUsageLogRepository(db)

	client := adapter.NewGetAddressClient(cfg.Lookup, logger)
	budget := ratelimit.NewLookupBudget(client, cfg.Budget.LockTimeout, logger)
	governor, err := ratelimit.NewWindowGovernor(ratelimit.WindowConfig{
		Ceiling:      cfg.Budget.MaxRequestsPer5Min,
		Headroom:     cfg.Budget.Headroom,
		WaitInterval: cfg.Budget.WaitInterval,
		MaxWaits:     cfg.Budget.MaxWaits,
	}, usageLog, logger)
	if err != nil {
		logger.ErrorWithErr("failed to build window governor", err)
		os.Exit(1)
	}

	status := service.NewProgressService(reference, postcodes, governor, budget)
	server := api.NewServer(cfg.Server, status, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.ErrorWithErr("server failed", err)
		os.Exit(1)
	case sig := <-stop:
		logger.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.ErrorWithErr("shutdown failed", err)
	}
}
