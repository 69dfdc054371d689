//go:build integration

package docstore

import (
	"context"
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

func newDocstoreTestEnv(t *testing.T) (context.Context, *Store) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	uri := testutil.RequireEnv(t, "MONGO_URI")
	ctx := context.Background()

	s, err := Open(ctx, uri, fmt.Sprintf("qrtracker_test_%d", time.Now().UnixNano()), testutil.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Database().Drop(context.Background())
		_ = s.Close(context.Background())
	})
	require.NoError(t, s.EnsureIndexes(ctx))
	return ctx, s
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

func TestIntegrationDocstore_RecordHit(t *testing.T) {
	ctx, s := newDocstoreTestEnv(t)
	link := testutil.NewTestLink(t, "acme")
	require.NoError(t, s.CreateLinks(ctx, []model.Link{link}))

	hit := testutil.NewTestHit(t, link, ulid.Make().String(), "hash-1")
	applied, err := s.RecordHit(ctx, hit, deltaFor(hit))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.RecordHit(ctx, hit, deltaFor(hit))
	require.NoError(t, err)
	assert.False(t, applied, "redelivery is a no-op")

	got, err := s.GetLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.HitCount)

	c, err := s.GetCampaign(ctx, link.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, model.Totals{Links: 1, Hits: 1, UniqueVisitors: 1}, c.Totals)

	b, err := s.GetBusiness(ctx, link.BusinessID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.HitCount)
}

func TestIntegrationDocstore_ConcurrentUniqueVisitor(t *testing.T) {
	ctx, s := newDocstoreTestEnv(t)
	link := testutil.NewTestLink(t, "acme")
	require.NoError(t, s.CreateLinks(ctx, []model.Link{link}))

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hit := testutil.NewTestHit(t, link, ulid.Make().String(), "same")
			_, err := s.RecordHit(ctx, hit, deltaFor(hit))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := s.GetCampaign(ctx, link.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), c.Totals.Hits)
	assert.Equal(t, int64(1), c.Totals.UniqueVisitors)
}

func TestIntegrationDocstore_TakenAndConflict(t *testing.T) {
	ctx, s := newDocstoreTestEnv(t)
	var links []model.Link
	for _, id := range []string{"acme", "acme-1", "acme-3", "acmeX", "a.me-1"} {
		links = append(links, testutil.NewTestLink(t, id))
	}
	require.NoError(t, s.CreateLinks(ctx, links))

	taken, err := s.TakenIdentifiers(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "acme-1", "acme-3"}, taken)

	err = s.CreateLinks(ctx, []model.Link{testutil.NewTestLink(t, "new-1"), testutil.NewTestLink(t, "acme")})
	assert.ErrorIs(t, err, store.ErrConflict)
	_, err = s.GetLink(ctx, "new-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIntegrationDocstore_SyntheticAndRecount(t *testing.T) {
	ctx, s := newDocstoreTestEnv(t)
	link := testutil.NewTestLink(t, "acme")
	link.TargetID = "t-1"
	require.NoError(t, s.CreateLinks(ctx, []model.Link{link}))

	synthetic := testutil.NewTestHit(t, link, ulid.Make().String(), "")
	synthetic.IsTestData = true
	_, err := s.RecordHit(ctx, synthetic, deltaFor(synthetic))
	require.NoError(t, err)

	got, err := s.GetLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Zero(t, got.HitCount)

	past := time.Now().Add(-time.Minute)
	expiring := testutil.NewTestHit(t, link, ulid.Make().String(), "v")
	expiring.ExpiresAt = &past
	_, err = s.RecordHit(ctx, expiring, deltaFor(expiring))
	require.NoError(t, err)

	totals, err := s.RecountCampaign(ctx, link.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, model.Totals{Targets: 1, Links: 1, Hits: 1, UniqueVisitors: 1}, totals)

	purged, err := s.PurgeExpiredHits(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
