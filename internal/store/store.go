// Package store defines the document store contracts used by the redirector
// and the import pipeline, plus an in-memory implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

// Common store errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("store unavailable")
)

// HitDelta is the aggregate effect of a single hit.
type HitDelta struct {
	LinkID     string
	CampaignID string
	BusinessID string
	// IPHash keys the unique visitor marker. Empty skips the marker.
	IPHash string
	At     time.Time
	// Synthetic hits are stored apart and never touch counters.
	Synthetic bool
}

// LinkReader reads single links. Hot path of every redirect.
type LinkReader interface {
	GetLink(ctx context.Context, id string) (*model.Link, error)
}

// HitRecorder applies one hit and its counters as a single atomic unit.
// It returns false without error when the hit ID was already recorded.
type HitRecorder interface {
	RecordHit(ctx context.Context, hit model.Hit, delta HitDelta) (bool, error)
}

// IdentifierIndex answers existence queries for the assigner.
type IdentifierIndex interface {
	// TakenIdentifiers returns existing identifiers equal to base or
	// starting with base + "-".
	TakenIdentifiers(ctx context.Context, base string) ([]string, error)
}

// LinkWriter persists newly assigned links.
type LinkWriter interface {
	// CreateLinks creates every link or none. An existing identifier
	// fails the whole call with ErrConflict.
	CreateLinks(ctx context.Context, links []model.Link) error
}

// CampaignReader reads aggregate documents.
type CampaignReader interface {
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	GetBusiness(ctx context.Context, id string) (*model.Business, error)
}

// Maintenance holds the reconciliation and retention operations.
type Maintenance interface {
	PurgeExpiredHits(ctx context.Context, now time.Time) (int64, error)
	RecountCampaign(ctx context.Context, campaignID string) (model.Totals, error)
}

// Store is the full backend surface.
type Store interface {
	LinkReader
	HitRecorder
	IdentifierIndex
	LinkWriter
	CampaignReader
	Maintenance
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// MaxTime returns the later of a stored timestamp and t.
func MaxTime(stored *time.Time, t time.Time) *time.Time {
	if stored != nil && !stored.Before(t) {
		return stored
	}
	return &t
}
