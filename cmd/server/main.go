// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

// Package main is the entry point for the Granary analytics server.
//
// Granary consumes business events (contracts, production, weighing, quality,
// regulatory, finance) from NATS JetStream, appends them to an idempotent
// DuckDB fact store, periodically materializes per-tenant aggregate views,
// recalculates the KPI catalog, and serves forecasts over the stored series.
//
// Components are wired here explicitly, in dependency order: configuration,
// logging, database, NATS (optionally embedded), streams, publisher (with an
// optional write-ahead log for outbound events), subscriber, and finally the
// suture supervision tree that owns every long-running service. Shutdown is
// signal-driven: SIGINT/SIGTERM cancels the tree, then connections close in
// reverse order of creation.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/tradesight/granary/internal/config"
	"github.com/tradesight/granary/internal/consumer"
	"github.com/tradesight/granary/internal/database"
	"github.com/tradesight/granary/internal/forecaster"
	"github.com/tradesight/granary/internal/kpi"
	"github.com/tradesight/granary/internal/logging"
	"github.com/tradesight/granary/internal/materializer"
	"github.com/tradesight/granary/internal/messaging"
	"github.com/tradesight/granary/internal/ops"
	"github.com/tradesight/granary/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("stream", cfg.NATS.StreamName).
		Bool("embedded_nats", cfg.NATS.EmbeddedServer).
		Msg("starting granary")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// NATS: optionally embedded for standalone deployments, otherwise an
	// external cluster.
	natsURL := cfg.NATS.URL
	var embedded *messaging.EmbeddedServer
	if cfg.NATS.EmbeddedServer {
		serverCfg := messaging.ServerConfigFromApp(&cfg.NATS)
		embedded, err = messaging.NewEmbeddedServer(&serverCfg)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to start embedded NATS server")
		}
		defer shutdownEmbedded(embedded)
		natsURL = embedded.ClientURL()
	}

	nc, err := natsgo.Connect(natsURL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.NATS.MaxReconnects),
		natsgo.ReconnectWait(cfg.NATS.ReconnectWait),
	)
	if err != nil {
		logging.Fatal().Err(err).Str("url", natsURL).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	streams, err := messaging.NewStreamManager(nc, messaging.StreamSpecsFromApp(&cfg.NATS))
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create stream manager")
	}
	if err := streams.EnsureStreams(ctx); err != nil {
		logging.Fatal().Err(err).Msg("failed to provision JetStream streams")
	}

	wmLogger := logging.NewWatermillAdapter()

	publisher, err := messaging.NewPublisher(messaging.PublisherConfigFromApp(&cfg.NATS, natsURL), wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create publisher")
	}
	defer closeQuietly("publisher", publisher.Close)
	publisher.SetCircuitBreaker(messaging.NewPublishBreaker("nats-publish"))

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// Outbound events go through the WAL when enabled: write-ahead, publish,
	// confirm, with a supervised retry loop for entries that never confirmed.
	var eventPublisher messaging.EventPublisher = publisher
	if cfg.Consumer.WALEnabled {
		walCfg := messaging.DefaultWALConfig(cfg.Consumer.WALPath)
		if cfg.Consumer.WALRetryWait > 0 {
			walCfg.RetryInterval = cfg.Consumer.WALRetryWait
		}
		wal, err := messaging.OpenWAL(walCfg)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Consumer.WALPath).Msg("failed to open outbound WAL")
		}
		defer closeQuietly("wal", wal.Close)

		walPublisher, err := messaging.NewWALPublisher(publisher, wal)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to create WAL publisher")
		}
		eventPublisher = walPublisher
		tree.AddDataService(messaging.NewRetryLoop(wal, publisher))
		logging.Info().Str("path", cfg.Consumer.WALPath).Msg("outbound WAL enabled")
	}

	subCfg := messaging.SubscriberConfigFromApp(&cfg.NATS, natsURL)
	subscriber, err := messaging.NewSubscriber(&subCfg, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create subscriber")
	}
	defer closeQuietly("subscriber", subscriber.Close)

	topic := cfg.Consumer.Topic
	if topic == "" {
		// Bound to the stream, ">" covers every configured subject.
		topic = ">"
	}
	tree.AddPipelineService(consumer.New(db, subscriber, topic))

	engine := materializer.New(db, eventPublisher)
	kpiEngine := kpi.New(db, eventPublisher)
	tree.AddPipelineService(materializer.NewScheduler(engine, db, kpiEngine, cfg.Materializer.ScheduleInterval))

	forecastSvc := forecaster.New(db, eventPublisher, &cfg.Forecasting)
	tree.AddDataService(forecaster.NewJanitor(forecastSvc, db))

	tree.AddOpsService(ops.NewServer(&cfg.Ops,
		ops.Check{Name: "database", Probe: db.Ping},
		ops.Check{Name: "nats", Probe: func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("nats connection down")
			}
			return nil
		}},
	))

	logging.Info().Msg("supervision tree starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervision tree terminated")
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop within the shutdown timeout")
		}
	}
	logging.Info().Msg("granary stopped")
}

func shutdownEmbedded(embedded *messaging.EmbeddedServer) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := embedded.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("error shutting down embedded NATS server")
	}
}

func closeQuietly(name string, close func() error) {
	if err := close(); err != nil {
		logging.Error().Err(err).Str("component", name).Msg("error during shutdown")
	}
}
