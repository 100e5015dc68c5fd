package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/wolfman30/clinic-booking/internal/catalog"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/journal"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.Discard(), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.Discard(), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildCatalogCache(t *testing.T) {
	if _, ok := BuildCatalogCache(nil).(*catalog.MemoryCache); !ok {
		t.Fatalf("expected memory cache without redis")
	}

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logging.Discard(), false)
	defer client.Close()
	if _, ok := BuildCatalogCache(client).(*catalog.RedisCache); !ok {
		t.Fatalf("expected redis cache")
	}
}

func TestBuildJournalWithoutDatabase(t *testing.T) {
	pool, j, err := BuildJournal(context.Background(), &appconfig.Config{}, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool != nil {
		t.Fatalf("expected nil pool")
	}
	if _, ok := j.(journal.NopRecorder); !ok {
		t.Fatalf("expected no-op journal, got %T", j)
	}
}

func TestBuildSlotConfig(t *testing.T) {
	cfg := &appconfig.Config{
		ClinicTimezone:  "Asia/Ho_Chi_Minh",
		BookingLeadTime: 2 * time.Hour,
		SlotGranularity: 30 * time.Minute,
		SlotMode:        "local",
	}
	sc, err := BuildSlotConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Mode != slots.ModeLocal || sc.LeadTime != 2*time.Hour || sc.Location.String() != "Asia/Ho_Chi_Minh" {
		t.Fatalf("unexpected slot config %+v", sc)
	}

	cfg.SlotMode = "hybrid"
	if _, err := BuildSlotConfig(cfg); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestBuildRequirements(t *testing.T) {
	req := BuildRequirements(&appconfig.Config{BookingRequireSpecialty: false, BookingRequireService: true})
	if req.Specialty || !req.Service {
		t.Fatalf("unexpected requirements %+v", req)
	}
	if got := BuildRequirements(nil); !got.Specialty {
		t.Fatalf("expected default requirements")
	}
}
