//	@title			Gallery API
//	@version		1.0
//	@description	Personal image gallery: upload, list, view and delete images kept in object storage.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/pixelnest/gallery/internal/backend"
	"github.com/pixelnest/gallery/internal/config"
	"github.com/pixelnest/gallery/internal/gallery"
	"github.com/pixelnest/gallery/internal/server"

	_ "github.com/pixelnest/gallery/docs/swagger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := initLogger(cfg)

	be, err := backend.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("backend initialisation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer be.Close()

	// Wire dependencies: capability → flow → handler
	notify := gallery.RefreshNotifier(be.Events, logger)
	uploader := gallery.NewUploader(be.Storage, be.Table, logger, notify)
	lister := gallery.NewLister(be.Storage, be.Table, cfg.SignedURLTTL, cfg.SignConcurrency, logger)
	viewer := gallery.NewViewer(cfg.DisplayLocation())

	r := newRouter(cfg, be, gallery.NewHandler(uploader, lister, viewer, be.Hub, gallery.DeletedNotifier(be.Events, logger), logger), logger)

	srv := server.New(r, cfg.Port, cfg.ReadTimeout, cfg.WriteTimeout, cfg.ShutdownTimeout, logger)

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := be.Run(srv.Context()); err != nil {
			logger.Error("event relay stopped", slog.String("error", err.Error()))
		}
	}()

	if cfg.ReconcileInterval > 0 {
		rec := gallery.NewReconciler(be.Storage, be.Table, cfg.ReconcileMinAge, cfg.ReconcileRemove, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			rec.Run(srv.Context(), cfg.ReconcileInterval)
		}()
		logger.Info("reconciler enabled",
			slog.Duration("interval", cfg.ReconcileInterval),
			slog.Bool("remove", cfg.ReconcileRemove),
		)
	}

	srv.OnShutdown("workers", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			workers.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	logger.Info("starting server",
		slog.Int("port", cfg.Port),
		slog.String("base_url", cfg.BaseURL),
		slog.String("env", cfg.AppEnv),
	)
	if !cfg.IsProduction() {
		logger.Info("swagger UI available", slog.String("url", cfg.BaseURL+"/swagger/"))
	}

	if err := srv.Run(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		be.Close()
		os.Exit(1)
	}
}

func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
