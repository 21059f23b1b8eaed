package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/veritahealth/clinic-platform/internal/api/router"
	"github.com/veritahealth/clinic-platform/internal/appointments"
	appconfig "github.com/veritahealth/clinic-platform/internal/config"
	"github.com/veritahealth/clinic-platform/internal/observability/metrics"
	"github.com/veritahealth/clinic-platform/internal/schedule"
	"github.com/veritahealth/clinic-platform/internal/staff"
	"github.com/veritahealth/clinic-platform/internal/timeoff"
	"github.com/veritahealth/clinic-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	hoursStart, err := schedule.ParseClock(cfg.WorkingHoursStart)
	if err != nil {
		logger.Error("invalid WORKING_HOURS_START", "error", err)
		os.Exit(1)
	}
	hoursEnd, err := schedule.ParseClock(cfg.WorkingHoursEnd)
	if err != nil {
		logger.Error("invalid WORKING_HOURS_END", "error", err)
		os.Exit(1)
	}

	schedMetrics := metrics.NewSchedulingMetrics(nil)

	staffRepo := staff.NewRepository(pool)
	timeOffRepo := timeoff.NewRepository(pool)
	apptRepo := appointments.NewRepository(pool)

	cache := schedule.NewAvailabilityCache(buildRedis(ctx, cfg, logger), cfg.AvailabilityCacheTTL, logger)

	availability := schedule.NewService(staffRepo, timeOffRepo, apptRepo, cache, schedule.Defaults{
		WorkingHours:  schedule.WorkingHours{StartMinutes: hoursStart, EndMinutes: hoursEnd},
		SlotDuration:  cfg.SlotDurationMinutes,
		MaxRangeDays:  cfg.MaxRangeDays,
		SourceTimeout: cfg.SourceTimeout,
	}, schedMetrics, logger)
	booking := appointments.NewService(apptRepo, schedMetrics, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		AvailabilityHandler: schedule.NewHandler(availability, logger),
		StaffHandler:        staff.NewHandler(staffRepo, logger),
		BookingHandler:      appointments.NewHandler(booking, logger),
		TimeOffHandler:      timeoff.NewHandler(timeOffRepo, logger),
		MetricsHandler:      promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildRedis returns nil when caching is disabled or redis is not
// reachable; the availability cache degrades to a no-op either way.
func buildRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if cfg.AvailabilityCacheTTL <= 0 || cfg.RedisAddr == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, availability cache disabled", "error", err)
		return nil
	}
	return client
}
