package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nerrad567/powerwatch/internal/infrastructure/config"
	"github.com/nerrad567/powerwatch/internal/infrastructure/postgres"
)

// TestPostgresRepository runs against a live server when
// POWERWATCH_TEST_POSTGRES_URL is set. The table is truncated first.
func TestPostgresRepository(t *testing.T) {
	url := os.Getenv("POWERWATCH_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("POWERWATCH_TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, config.PostgresConfig{URL: url})
	if err != nil {
		t.Fatalf("postgres.Open() error = %v", err)
	}
	t.Cleanup(db.Close)

	repo := NewPostgresRepository(db.Pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE power_readings"); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	old := Record{Apartment: "301", Voltage: 220, RecordedAt: now.Add(-48 * time.Hour), ArrivedAt: now}
	fresh := Record{Apartment: "301", Voltage: 230, RecordedAt: now, ArrivedAt: now,
		Extra: map[string]any{"battery_level": 88.0}}

	for _, rec := range []Record{old, fresh} {
		if err := repo.Save(ctx, rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	got, err := repo.Recent(ctx, "301", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 || got[0].Voltage != 230 {
		t.Fatalf("Recent() = %+v, want newest first", got)
	}
	if got[0].Extra["battery_level"] != 88.0 {
		t.Errorf("Extra = %v", got[0].Extra)
	}

	pruned, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if pruned != 1 {
		t.Errorf("Prune() = %d, want 1", pruned)
	}
}
