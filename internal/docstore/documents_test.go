package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
	"github.com/marcel-gle/gb-qr-tracker/internal/store"
)

func TestNewHitDoc_Geo(t *testing.T) {
	t.Parallel()

	lat := 52.52
	hit := model.Hit{
		ID:         "01HZX",
		LinkID:     "acme",
		Timestamp:  time.Date(2026, 5, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600)),
		DeviceType: model.DeviceMobile,
		Origin:     model.OriginEdge,
		Geo:        &model.Geo{Country: "DE", Lat: &lat, Source: "maxmind"},
	}

	doc := newHitDoc(hit)
	assert.Equal(t, "mobile", doc.DeviceType)
	assert.Equal(t, "edge", doc.Origin)
	assert.Equal(t, time.UTC, doc.Timestamp.Location())
	if assert.NotNil(t, doc.Geo) {
		assert.Equal(t, "DE", doc.Geo.Country)
		assert.Equal(t, &lat, doc.Geo.Lat)
	}

	hit.Geo = &model.Geo{Source: "api"}
	assert.Nil(t, newHitDoc(hit).Geo, "empty geo is omitted")
}

func TestLinkDoc_PreservesCounters(t *testing.T) {
	t.Parallel()

	last := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	link := model.Link{ID: "acme", Destination: "https://example.com", Active: true, HitCount: 7, LastHitAt: &last}
	got := newLinkDoc(link).toModel()
	assert.Equal(t, int64(7), got.HitCount)
	assert.Equal(t, &last, got.LastHitAt)
	assert.True(t, got.Active)
}

func TestVisitorID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "spring:abc123", visitorID("spring", "abc123"))
	assert.NotEqual(t, visitorID("a", "bc"), visitorID("ab", "c"))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.NoError(t, classify("op", nil))
	assert.ErrorIs(t, classify("op", context.Canceled), store.ErrUnavailable)

	other := errors.New("boom")
	err := classify("op", other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, store.ErrUnavailable)
}
