// Package main provides the entrypoint for the waypost tracking daemon.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/waypost/waypost/internal/api"
	"github.com/waypost/waypost/internal/capture"
	"github.com/waypost/waypost/internal/config"
	"github.com/waypost/waypost/internal/creds"
	"github.com/waypost/waypost/internal/profile"
	"github.com/waypost/waypost/internal/queue"
	"github.com/waypost/waypost/internal/record"
	"github.com/waypost/waypost/internal/settings"
	"github.com/waypost/waypost/internal/storage"
	"github.com/waypost/waypost/internal/syncer"
	"github.com/waypost/waypost/internal/telemetry"
	"github.com/waypost/waypost/internal/tracker"

	geofencepkg "github.com/waypost/waypost/internal/geofence"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	cfg := config.Load()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", Version).
		Logger()

	log.Info().Str("env", cfg.Environment).Msg("starting waypost tracking daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TelemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := telemetry.NewPipelineMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pipeline metrics")
	}

	// Open the on-device store: delivery queue, geofences, profiles.
	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("failed to open database")
	}
	defer db.Close()
	log.Info().Str("path", cfg.DatabasePath).Msg("database opened")

	queueRepo := queue.NewSQLiteRepository(db)
	geofenceRepo := geofencepkg.NewSQLiteRepository(db)
	profileRepo := profile.NewSQLiteRepository(db)

	if err := telemetry.RegisterQueueDepth(tp.Meter, func(ctx context.Context) (int64, error) {
		stats, err := queueRepo.Stats(ctx)
		if err != nil {
			return 0, err
		}
		return stats.Queued, nil
	}); err != nil {
		log.Error().Err(err).Msg("failed to register queue depth gauge")
	}

	store := settings.NewStore(settings.Default())

	provider := creds.NewStaticProvider(creds.StaticConfig{
		Type:     creds.AuthType(cfg.AuthType),
		Username: cfg.AuthUser,
		Password: cfg.AuthPass,
		Token:    cfg.AuthToken,
	})

	transport := syncer.NewTransport(syncer.TransportConfig{
		Name:    "delivery",
		Timeout: cfg.RequestTimeout,
	})

	syncEngine := syncer.NewEngine(syncer.EngineConfig{
		Queue:     queueRepo,
		Store:     store,
		Creds:     provider,
		Sender:    transport,
		Logger:    log,
		BatchSize: cfg.BatchSize,
		Metrics:   metrics,
	})

	profileEngine := profile.NewEngine(profile.EngineConfig{
		Repository: profileRepo,
		Store:      store,
		Logger:     log,
	})

	// The fix source is the platform seam: trackerd polls the platform
	// location reader; a host with a fused provider callback feeds a
	// push source instead.
	source := capture.NewPolledSource(platformFixReader())
	battery := capture.NewCachedBatteryProvider(platformBatteryProvider(), 10*time.Second)
	filter := capture.NewFilter(store, battery)

	trk := tracker.New(tracker.Config{
		Source:    source,
		Filter:    filter,
		Geofences: geofenceRepo,
		Queue:     queueRepo,
		Store:     store,
		Notifier:  syncEngine,
		Logger:    log,
		Metrics:   metrics,
	})

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		trk.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		syncEngine.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		profileEngine.Run(ctx)
	}()

	if cfg.AutoStart {
		trk.Start()
	}

	router := api.NewRouter(api.RouterConfig{
		Version:       Version,
		Logger:        log,
		ServiceName:   cfg.ServiceName,
		Store:         store,
		Queue:         queueRepo,
		Geofences:     geofenceRepo,
		Profiles:      profileRepo,
		ProfileEngine: profileEngine,
		Tracker:       trk,
		Syncer:        syncEngine,
	})

	server := &http.Server{
		Addr:         "127.0.0.1:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("control API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	wg.Wait()
	log.Info().Msg("stopped")
}

// platformFixReader adapts whatever position interface the host exposes.
// The default build has no GPS hardware binding: the reader reports no
// fix on every tick and the daemon idles until a real reader is wired
// in here.
func platformFixReader() capture.FixReader {
	return func(ctx context.Context) (capture.Fix, error) {
		return capture.Fix{}, capture.ErrNoFix
	}
}

func platformBatteryProvider() capture.BatteryProvider {
	return capture.NewStaticBatteryProvider(100, record.BatteryUnknown)
}
