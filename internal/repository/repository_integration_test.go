//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
	"github.com/marcel-gle/gb-qr-tracker/internal/store"
	"github.com/marcel-gle/gb-qr-tracker/internal/testutil"
)

func newRepoTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	require.NoError(t, err, "connect db")
	t.Cleanup(func() { _ = repo.Close(ctx) })

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	require.NoError(t, err, "acquire db lock")
	t.Cleanup(func() { _ = unlock() })

	require.NoError(t, repo.EnsureSchema(ctx))
	_, err = repo.Pool().Exec(ctx,
		`TRUNCATE links, campaigns, businesses, hits, test_hits, unique_visitors`)
	require.NoError(t, err, "reset tables")

	return ctx, repo
}

func seedLink(t *testing.T, ctx context.Context, repo *Repository, id string) model.Link {
	t.Helper()
	link := testutil.NewTestLink(t, id)
	require.NoError(t, repo.CreateLinks(ctx, []model.Link{link}))
	return link
}

func deltaFor(hit model.Hit) store.HitDelta {
	return store.HitDelta{
		LinkID:     hit.LinkID,
		CampaignID: hit.CampaignID,
		BusinessID: hit.BusinessID,
		IPHash:     hit.IPHash,
		At:         hit.Timestamp,
		Synthetic:  hit.IsTestData,
	}
}

func TestIntegrationRepository_GetLink(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)
	link := seedLink(t, ctx, repo, "Bäckerei-Müller")

	got, err := repo.GetLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, link.Destination, got.Destination)
	assert.True(t, got.Active)
	assert.Equal(t, link.CampaignID, got.CampaignID)
	assert.Equal(t, "", got.TargetID)
	assert.Zero(t, got.HitCount)

	_, err = repo.GetLink(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIntegrationRepository_RecordHit(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)
	link := seedLink(t, ctx, repo, "acme")

	hit := testutil.NewTestHit(t, link, ulid.Make().String(), "hash-1")
	hit.Geo = &model.Geo{Country: "DE", Source: "maxmind"}

	applied, err := repo.RecordHit(ctx, hit, deltaFor(hit))
	require.NoError(t, err)
	assert.True(t, applied)

	// Redelivery of the same hit is a no-op.
	applied, err = repo.RecordHit(ctx, hit, deltaFor(hit))
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := repo.GetLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.HitCount)
	require.NotNil(t, got.LastHitAt)
	assert.True(t, got.LastHitAt.Equal(hit.Timestamp))

	c, err := repo.GetCampaign(ctx, link.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Totals.Hits)
	assert.Equal(t, int64(1), c.Totals.UniqueVisitors)
	assert.Equal(t, int64(1), c.Totals.Links)

	b, err := repo.GetBusiness(ctx, link.BusinessID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.HitCount)

	// An older hit never moves last_hit_at backwards.
	older := testutil.NewTestHit(t, link, ulid.Make().String(), "hash-1")
	older.Timestamp = hit.Timestamp.Add(-time.Hour)
	_, err = repo.RecordHit(ctx, older, deltaFor(older))
	require.NoError(t, err)

	got, err = repo.GetLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.HitCount)
	assert.True(t, got.LastHitAt.Equal(hit.Timestamp))

	c, err = repo.GetCampaign(ctx, link.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Totals.UniqueVisitors, "same visitor counted once")
}

func TestIntegrationRepository_SyntheticHitSkipsCounters(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)
	link := seedLink(t, ctx, repo, "acme")

	hit := testutil.NewTestHit(t, link, ulid.Make().String(), "hash")
	hit.IsTestData = true

	applied, err := repo.RecordHit(ctx, hit, deltaFor(hit))
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repo.GetLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Zero(t, got.HitCount)

	var n int
	require.NoError(t, repo.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM test_hits`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestIntegrationRepository_ConcurrentUniqueVisitor(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)
	link := seedLink(t, ctx, repo, "acme")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hit := testutil.NewTestHit(t, link, ulid.Make().String(), "same-visitor")
			if _, err := repo.RecordHit(ctx, hit, deltaFor(hit)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("record hit: %v", err)
	}

	c, err := repo.GetCampaign(ctx, link.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), c.Totals.Hits)
	assert.Equal(t, int64(1), c.Totals.UniqueVisitors)
}

func TestIntegrationRepository_TakenIdentifiers(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)
	for _, id := range []string{"acme", "acme-1", "acme-7", "acmeX", "acme_1", "a_me-1"} {
		seedLink(t, ctx, repo, id)
	}

	taken, err := repo.TakenIdentifiers(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "acme-1", "acme-7"}, taken)

	// Underscore is literal, not a wildcard.
	taken, err = repo.TakenIdentifiers(ctx, "a_me")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_me-1"}, taken)
}

func TestIntegrationRepository_CreateLinksAllOrNothing(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)
	seedLink(t, ctx, repo, "taken")

	batch := []model.Link{
		testutil.NewTestLink(t, "fresh-1"),
		testutil.NewTestLink(t, "taken"),
	}
	err := repo.CreateLinks(ctx, batch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConflict), "got %v", err)

	_, err = repo.GetLink(ctx, "fresh-1")
	assert.ErrorIs(t, err, store.ErrNotFound, "batch must roll back")
}

func TestIntegrationRepository_RecountAndPurge(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	links := make([]model.Link, 3)
	for i := range links {
		links[i] = testutil.NewTestLink(t, fmt.Sprintf("camp-%d", i))
		links[i].CampaignID = "spring"
		links[i].TargetID = fmt.Sprintf("target-%d", i%2)
	}
	require.NoError(t, repo.CreateLinks(ctx, links))

	past := time.Now().Add(-time.Hour)
	for i, l := range links {
		hit := testutil.NewTestHit(t, l, ulid.Make().String(), fmt.Sprintf("v-%d", i%2))
		hit.ExpiresAt = &past
		_, err := repo.RecordHit(ctx, hit, deltaFor(hit))
		require.NoError(t, err)
	}

	// Drift the counters, then reconcile.
	_, err := repo.Pool().Exec(ctx, `UPDATE campaigns SET total_hits = 99, unique_ips = 0 WHERE id = 'spring'`)
	require.NoError(t, err)

	totals, err := repo.RecountCampaign(ctx, "spring")
	require.NoError(t, err)
	assert.Equal(t, model.Totals{Targets: 2, Links: 3, Hits: 3, UniqueVisitors: 2}, totals)

	purged, err := repo.PurgeExpiredHits(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)

	_, err = repo.RecountCampaign(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
