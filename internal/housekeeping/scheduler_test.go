package housekeeping

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcel-gle/gb-qr-tracker/internal/metrics"
	"github.com/marcel-gle/gb-qr-tracker/internal/model"
	"github.com/marcel-gle/gb-qr-tracker/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingMaint struct{ err error }

func (f failingMaint) PurgeExpiredHits(context.Context, time.Time) (int64, error) { return 0, f.err }
func (f failingMaint) RecountCampaign(context.Context, string) (model.Totals, error) {
	return model.Totals{}, f.err
}

func seedStore(t *testing.T) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	links := []model.Link{
		{ID: "a", Destination: "https://example.com", Active: true, CampaignID: "spring", TargetID: "t1"},
		{ID: "b", Destination: "https://example.com", Active: true, CampaignID: "spring", TargetID: "t1"},
	}
	require.NoError(t, mem.CreateLinks(ctx, links))

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	hits := []struct {
		id      string
		expires *time.Time
	}{
		{"h1", &past},
		{"h2", &future},
		{"h3", nil},
	}
	for _, h := range hits {
		hit := model.Hit{ID: h.id, LinkID: "a", CampaignID: "spring", Timestamp: time.Now(), ExpiresAt: h.expires}
		_, err := mem.RecordHit(ctx, hit, store.HitDelta{LinkID: "a", CampaignID: "spring", IPHash: h.id, At: hit.Timestamp})
		require.NoError(t, err)
	}
	return mem
}

func TestRunPurge(t *testing.T) {
	t.Parallel()

	mem := seedStore(t)
	rec := metrics.NewInMemory()
	s := New(mem, quietLogger(), WithMetrics(rec))

	n, err := s.RunPurge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, mem.HitCount())
	assert.Equal(t, uint64(1), rec.Snapshot().HousekeepingRuns[JobPurge+"/ok"])
}

func TestRunRecount(t *testing.T) {
	t.Parallel()

	mem := seedStore(t)
	rec := metrics.NewInMemory()
	s := New(mem, quietLogger(), WithMetrics(rec))

	_, err := s.RunPurge(context.Background())
	require.NoError(t, err)
	mem.PutCampaign(model.Campaign{ID: "spring"})

	require.NoError(t, s.RunRecount(context.Background(), []string{"spring", "unknown"}))

	c, err := mem.GetCampaign(context.Background(), "spring")
	require.NoError(t, err)
	assert.Equal(t, model.Totals{Targets: 1, Links: 2, Hits: 2, UniqueVisitors: 3}, c.Totals)
	assert.Equal(t, uint64(1), rec.Snapshot().HousekeepingRuns[JobRecount+"/ok"])
}

func TestRunRecount_Failure(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	rec := metrics.NewInMemory()
	s := New(failingMaint{err: boom}, quietLogger(), WithMetrics(rec))

	err := s.RunRecount(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), rec.Snapshot().HousekeepingRuns[JobRecount+"/failed"])

	_, err = s.RunPurge(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), rec.Snapshot().HousekeepingRuns[JobPurge+"/failed"])
}

func TestSchedule_Validation(t *testing.T) {
	t.Parallel()

	s := New(store.NewMemory(), quietLogger())

	assert.NoError(t, s.SchedulePurge(""), "empty schedule disables the job")
	assert.NoError(t, s.SchedulePurge("@hourly"))
	assert.NoError(t, s.SchedulePurge("*/5 * * * *"))
	assert.Error(t, s.SchedulePurge("not a cron"))

	assert.NoError(t, s.ScheduleRecount("", nil))
	assert.Error(t, s.ScheduleRecount("@daily", nil))
	assert.NoError(t, s.ScheduleRecount("@daily", []string{"spring"}))
}

func TestStartShutdown(t *testing.T) {
	t.Parallel()

	s := New(store.NewMemory(), quietLogger())
	require.NoError(t, s.SchedulePurge("@every 10ms"))
	s.Start()
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
