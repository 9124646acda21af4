package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/azazel75/clapshot/internal/app"
	"github.com/azazel75/clapshot/internal/config"
	"github.com/azazel75/clapshot/internal/database"
	"github.com/azazel75/clapshot/internal/logging"
	"github.com/azazel75/clapshot/internal/pipeline/metadata"
	"github.com/azazel75/clapshot/internal/server"
	"github.com/azazel75/clapshot/internal/sessions"
	"github.com/azazel75/clapshot/internal/ws"
	"github.com/jonboulle/clockwork"
)

const ingestQueueSize = 64

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *database.DB {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseFile)
	if err != nil {
		slog.Error("Failed to open database", "file", cfg.DatabaseFile, "error", err)
		os.Exit(1)
	}
	return db
}

func runGracefulShutdown(srv *server.Server, svc *app.Service, terminate *atomic.Bool, stopIngest func(), pipelineDone *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Refuse new broadcasts while sessions drain.
		terminate.Store(true)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// No more uploads can arrive once the server is down, so the
		// pipeline can drain its queue and exit.
		stopIngest()
		pipelineDone.Wait()

		svc.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	if err := cfg.EnsureDirs(); err != nil {
		slog.Error("Failed to create data directories", "data_dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	db := setupDB(cfg)
	defer func() { _ = db.Close() }()

	var terminate atomic.Bool
	registry := sessions.NewRegistry(db, cfg.VideosDir(), cfg.UploadDir(), cfg.URLBase, &terminate)

	ingestQ := make(chan metadata.IncomingFile, ingestQueueSize)
	results := make(chan metadata.Result, ingestQueueSize)

	var pipelineDone sync.WaitGroup

	reader := metadata.NewReader(cfg.MediainfoBin)
	pipelineDone.Add(1)
	go func() {
		defer pipelineDone.Done()
		reader.Run(context.Background(), ingestQ, results, cfg.MetadataWorkers)
		close(results)
	}()

	svc := app.NewService(db, registry, cfg.RejectDir(), clock)
	pipelineDone.Add(1)
	go func() {
		defer pipelineDone.Done()
		svc.Run(context.Background(), results)
	}()

	wsHandler := ws.NewHandler(registry, svc, clock)
	srv := server.NewServer(cfg, registry, wsHandler.Handle, ingestQ)

	var stopIngest sync.Once
	done := runGracefulShutdown(srv, svc, &terminate, func() { stopIngest.Do(func() { close(ingestQ) }) }, &pipelineDone)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
