package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/captionhub/internal/api"
	"github.com/snarg/captionhub/internal/config"
	"github.com/snarg/captionhub/internal/database"
	"github.com/snarg/captionhub/internal/events"
	"github.com/snarg/captionhub/internal/media"
	"github.com/snarg/captionhub/internal/metrics"
	"github.com/snarg/captionhub/internal/mirror"
	"github.com/snarg/captionhub/internal/snapshot"
	"github.com/snarg/captionhub/internal/waveform"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default: .env if present)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	flag.Parse()

	if *showVersion {
		fmt.Println("captionhub", version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("captionhub starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	// Event bus
	bus := events.NewBus(cfg.EventBusCapacity)
	defer bus.Close()

	// Media source
	source := media.NewYouTubeClient(media.YouTubeOptions{
		APIURL:   cfg.YouTubeAPIURL,
		APIKey:   cfg.YouTubeAPIKey,
		YTDLPBin: cfg.YTDLPBin,
		Log:      log.With().Str("component", "media").Logger(),
	})

	// Waveform ingestion
	ingestLog := log.With().Str("component", "ingest").Logger()
	pipeline := waveform.NewPipeline(waveform.PipelineOptions{
		Source: source,
		Extractor: waveform.ProcessExtractor{
			FFmpegBin:        cfg.FFmpegBin,
			AudiowaveformBin: cfg.AudiowaveformBin,
		},
		Store:  db,
		Bus:    bus,
		TmpDir: cfg.WaveformTmpDir,
		Log:    ingestLog,
	})
	pool := waveform.NewWorkerPool(waveform.PoolOptions{
		Runner:    pipeline,
		Workers:   cfg.IngestWorkers,
		QueueSize: cfg.IngestQueueSize,
		Timeout:   cfg.IngestTimeout,
		Log:       ingestLog,
	})
	pool.Start()

	// Requeue videos left pending by a full queue or an interrupted run
	reconciler := waveform.NewReconciler(waveform.ReconcilerOptions{
		Store:    db,
		Queue:    pool,
		Interval: cfg.IngestReconcilePeriod,
		Wait:     cfg.IngestEnqueueWait,
		Log:      ingestLog,
	})
	reconciler.Start()

	prometheus.MustRegister(metrics.NewCollector(db.Pool, bus, pool))

	// Optional MQTT mirror
	var mirrorStatus api.MirrorStatus
	var mir *mirror.Mirror
	if cfg.MirrorEnabled() {
		mqttLog := log.With().Str("component", "mqtt").Logger()
		client, err := mirror.Connect(mirror.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       mqttLog,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer client.Close()
		mir = mirror.New(bus, client, cfg.MQTTTopicPrefix, mqttLog)
		go mir.Run(ctx)
		mirrorStatus = client
	}

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		Store:     db,
		Snapshots: snapshot.NewManager(db, log.With().Str("component", "snapshot").Logger()),
		Bus:       bus,
		Media:     source,
		Ingest:    pool,
		Mirror:    mirrorStatus,
		Version:   version,
		StartTime: startTime,
		Log:       httpLog,
	})

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout per stage
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	reconciler.Stop()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDrain()
	if err := pool.Stop(drainCtx); err != nil {
		log.Warn().Err(err).Msg("ingest jobs interrupted at shutdown, requeued on next start")
	}

	bus.Close()
	if mir != nil {
		<-mir.Done()
	}

	log.Info().Msg("captionhub stopped")
}
