package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/catalog"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/journal"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const dbConnectTimeout = 10 * time.Second

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildCatalogCache returns a Redis-backed catalog cache, or an in-process one
// when Redis is not configured.
func BuildCatalogCache(redisClient *redis.Client) catalog.Cache {
	if redisClient == nil {
		return catalog.NewMemoryCache()
	}
	return catalog.NewRedisCache(redisClient, "")
}

// BuildJournal connects the submission journal. Without a DATABASE_URL it
// returns a nil pool and a journal that drops every entry.
func BuildJournal(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, journal.Journal, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, journal.NopRecorder{}, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("submission journal enabled")
	return pool, journal.NewStore(pool), nil
}

// BuildSlotConfig translates the booking rules into resolver settings.
func BuildSlotConfig(cfg *appconfig.Config) (slots.Config, error) {
	if cfg == nil {
		return slots.Config{}, fmt.Errorf("bootstrap: config is required")
	}
	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		return slots.Config{}, fmt.Errorf("bootstrap: load timezone %q: %w", cfg.ClinicTimezone, err)
	}
	mode, err := slots.ParseMode(cfg.SlotMode)
	if err != nil {
		return slots.Config{}, fmt.Errorf("bootstrap: %w", err)
	}
	return slots.Config{
		LeadTime:    cfg.BookingLeadTime,
		Granularity: cfg.SlotGranularity,
		Location:    loc,
		Mode:        mode,
	}, nil
}

// BuildRequirements returns which step-1 fields gate a new booking.
func BuildRequirements(cfg *appconfig.Config) booking.Requirements {
	if cfg == nil {
		return booking.DefaultRequirements()
	}
	return booking.Requirements{
		Specialty: cfg.BookingRequireSpecialty,
		Service:   cfg.BookingRequireService,
	}
}
