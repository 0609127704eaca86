package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pricebot/internal/config"
	"pricebot/internal/market"
)

func TestArchiveWithoutPool(t *testing.T) {
	archive := NewPGArchive(nil)
	ctx := context.Background()

	if err := archive.EnsureSchema(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("EnsureSchema: expected ErrNotConfigured, got %v", err)
	}
	if err := archive.InsertObservation(ctx, market.Observation{Token: "bitcoin"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("InsertObservation: expected ErrNotConfigured, got %v", err)
	}
	if err := archive.InsertAlert(ctx, market.Alert{Token: "bitcoin"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("InsertAlert: expected ErrNotConfigured, got %v", err)
	}
	if _, _, err := archive.TryAdvisoryLock(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("TryAdvisoryLock: expected ErrNotConfigured, got %v", err)
	}
	archive.Close()
}

func TestNewPoolRequiresDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{}); err == nil {
		t.Fatal("empty dsn should fail")
	}
}

func newIntegrationArchive(t *testing.T) *PGArchive {
	t.Helper()
	dsn := os.Getenv("PRICEBOT_TEST_DSN")
	if dsn == "" {
		t.Skip("PRICEBOT_TEST_DSN not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	archive := NewPGArchive(pool)
	t.Cleanup(archive.Close)

	if err := archive.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return archive
}

func TestArchiveAlertRoundTrip(t *testing.T) {
	archive := newIntegrationArchive(t)
	ctx := context.Background()

	// far in the future so it sorts first among existing rows
	alert := market.Alert{
		Seq:           42,
		ID:            uuid.NewString(),
		Token:         "bitcoin",
		CurrentPrice:  decimal.RequireFromString("106.25"),
		PreviousPrice: decimal.RequireFromString("100"),
		ChangePercent: decimal.RequireFromString("6.25"),
		Timestamp:     time.Date(2999, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() {
		_, _ = archive.pool.Exec(context.Background(), `DELETE FROM price_alerts WHERE id = $1`, alert.ID)
	})

	if err := archive.InsertAlert(ctx, alert); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}
	if err := archive.InsertAlert(ctx, alert); err != nil {
		t.Fatalf("re-inserting the same alert should be a no-op: %v", err)
	}

	alerts, err := archive.ListRecentAlerts(ctx, 1)
	if err != nil {
		t.Fatalf("ListRecentAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	got := alerts[0]
	if got.ID != alert.ID || got.Seq != 42 || got.Token != "bitcoin" {
		t.Fatalf("unexpected identity %+v", got)
	}
	if !got.CurrentPrice.Equal(alert.CurrentPrice) || !got.PreviousPrice.Equal(alert.PreviousPrice) || !got.ChangePercent.Equal(alert.ChangePercent) {
		t.Fatalf("decimals not preserved: %+v", got)
	}
	if !got.Timestamp.Equal(alert.Timestamp) {
		t.Fatalf("expected timestamp %s, got %s", alert.Timestamp, got.Timestamp)
	}
}

func TestArchiveAdvisoryLockRelease(t *testing.T) {
	archive := newIntegrationArchive(t)
	ctx := context.Background()
	key := time.Now().UnixNano()

	unlock, acquired, err := archive.TryAdvisoryLock(ctx, key)
	if err != nil || !acquired {
		t.Fatalf("first lock: acquired=%v err=%v", acquired, err)
	}

	_, acquired, err = archive.TryAdvisoryLock(ctx, key)
	if err != nil {
		t.Fatalf("second lock: %v", err)
	}
	if acquired {
		t.Fatal("lock held by another session must not be acquired")
	}

	unlock()

	unlock, acquired, err = archive.TryAdvisoryLock(ctx, key)
	if err != nil || !acquired {
		t.Fatalf("lock after release: acquired=%v err=%v", acquired, err)
	}
	unlock()
}
