// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/api/device-api/config"
	internal_events "github.com/rapidaai/api/device-api/internal/events"
	internal_reassembly "github.com/rapidaai/api/device-api/internal/reassembly"
	internal_type "github.com/rapidaai/api/device-api/internal/type"
	device_routers "github.com/rapidaai/api/device-api/router"
	"github.com/rapidaai/pkg/commons"
	"github.com/rapidaai/pkg/connectors"
	"github.com/rapidaai/pkg/utils"
)

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("failed to read config: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Path(cfg.LogPath),
		commons.Level(cfg.LogLevel),
	)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var publisher internal_type.CompletionPublisher
	if utils.IsEmpty(cfg.CompletionChannel) {
		publisher = internal_events.NewLoggingPublisher(logger)
	} else {
		redis, err := connectors.NewRedisConnector(ctx, cfg.RedisConfig, logger)
		if err != nil {
			logger.Fatalf("failed to connect redis for completion events: %v", err)
		}
		defer redis.Close()
		publisher = internal_events.NewRedisPublisher(redis, cfg.CompletionChannel, logger)
	}

	ingestor := internal_reassembly.New(logger, publisher,
		internal_reassembly.WithRecordingDir(cfg.RecordingDir),
		internal_reassembly.WithReorderCapacity(cfg.ReorderCapacity),
		internal_reassembly.WithMaxSessions(cfg.MaxSessions),
		internal_reassembly.WithStaleAfter(cfg.StaleAfter),
		internal_reassembly.WithSweepInterval(cfg.SweepInterval),
		internal_reassembly.WithFallbackChunkSize(cfg.FallbackChunkSize),
		internal_reassembly.WithReuseExistingOnStart(cfg.ReuseExistingOnStart),
	)

	engine := gin.New()
	engine.Use(gin.Recovery())
	device_routers.HealthCheckRoutes(cfg, engine, logger)
	device_routers.DeviceIngestRoute(cfg, engine, logger, ingestor)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ingestor.Run(groupCtx)
	})
	group.Go(func() error {
		logger.Infof("%s v%s listening on %s", cfg.Name, cfg.Version, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Errorf("service stopped: %v", err)
	}
}
