// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================================================
// Test Data Factories
// ============================================================================

var seq atomic.Int64

// UniqueID generates a unique, identifier-safe ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// NewTestLink creates an active test link with sensible defaults.
func NewTestLink(t testing.TB, id string) model.Link {
	t.Helper()
	return model.Link{
		ID:           id,
		Destination:  "https://example.com/" + id,
		Active:       true,
		OwnerID:      "test-owner",
		CampaignID:   "campaign-" + id,
		BusinessID:   "business-" + id,
		CampaignName: "Test Campaign",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

// NewTestHit creates a hit for link with the given ID and IP hash.
func NewTestHit(t testing.TB, link model.Link, hitID, ipHash string) model.Hit {
	t.Helper()
	return model.Hit{
		ID:         hitID,
		LinkID:     link.ID,
		CampaignID: link.CampaignID,
		BusinessID: link.BusinessID,
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
		DeviceType: model.DeviceDesktop,
		IPHash:     ipHash,
		Origin:     model.OriginEdge,
	}
}
