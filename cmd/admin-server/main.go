package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mvasquez/taskpool/internal/api"
	"github.com/mvasquez/taskpool/internal/config"
	"github.com/mvasquez/taskpool/internal/dispatch"
	"github.com/mvasquez/taskpool/internal/events"
	"github.com/mvasquez/taskpool/internal/logger"
	"github.com/mvasquez/taskpool/internal/reactor"
	"github.com/mvasquez/taskpool/internal/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("starting dispatcher admin server")

	r := reactor.New()
	reg := task.NewRegistry()

	d, err := dispatch.New(r, reg, cfg.Dispatcher.ToOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create dispatcher")
	}

	var publisher *events.RedisPubSub
	if cfg.Telemetry.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Telemetry.Addr,
			Password:     cfg.Telemetry.Password,
			DB:           cfg.Telemetry.DB,
			PoolSize:     cfg.Telemetry.PoolSize,
			MinIdleConns: cfg.Telemetry.MinIdleConns,
			MaxRetries:   cfg.Telemetry.MaxRetries,
			DialTimeout:  cfg.Telemetry.DialTimeout,
			ReadTimeout:  cfg.Telemetry.ReadTimeout,
			WriteTimeout: cfg.Telemetry.WriteTimeout,
		})
		publisher = events.NewRedisPubSub(client)
		d.SetPublisher(publisher)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close event publisher")
			}
		}()
	}

	server := api.NewServer(cfg, d, publisher)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	server.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if err := d.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("dispatcher shutdown error")
	}

	log.Info().Msg("stopped")
}
