// Package aggregate applies recorded hits to the derived counters.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcel-gle/gb-qr-tracker/internal/metrics"
	"github.com/marcel-gle/gb-qr-tracker/internal/model"
	"github.com/marcel-gle/gb-qr-tracker/internal/store"
)

// ErrInvalidHit is returned for hits that cannot be applied.
var ErrInvalidHit = errors.New("invalid hit")

// Updater writes a hit and its counter increments as one atomic unit.
type Updater struct {
	recorder store.HitRecorder
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewUpdater creates an Updater on top of a store.
func NewUpdater(recorder store.HitRecorder, m metrics.Recorder, logger *slog.Logger) *Updater {
	if m == nil {
		m = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		recorder: recorder,
		metrics:  m,
		logger:   logger.With("component", "aggregate_updater"),
		now:      time.Now,
	}
}

// DeltaFor derives the counter effect of a hit.
func DeltaFor(hit model.Hit) store.HitDelta {
	delta := store.HitDelta{
		LinkID:     hit.LinkID,
		CampaignID: hit.CampaignID,
		BusinessID: hit.BusinessID,
		At:         hit.Timestamp,
		Synthetic:  hit.IsTestData,
	}
	if hit.CampaignID != "" {
		delta.IPHash = hit.IPHash
	}
	return delta
}

// Apply records the hit. Reapplying a hit with the same ID is a no-op.
func (u *Updater) Apply(ctx context.Context, hit model.Hit) error {
	if hit.ID == "" || hit.LinkID == "" {
		u.metrics.IncHitRecorded("failed")
		return fmt.Errorf("%w: missing id or link", ErrInvalidHit)
	}
	if hit.Timestamp.IsZero() {
		hit.Timestamp = u.now().UTC()
	}

	applied, err := u.recorder.RecordHit(ctx, hit, DeltaFor(hit))
	if err != nil {
		u.metrics.IncHitRecorded("failed")
		return fmt.Errorf("failed to record hit %s: %w", hit.ID, err)
	}

	if !applied {
		u.metrics.IncHitRecorded("duplicate")
		u.logger.Debug("hit_duplicate", "hit_id", hit.ID, "link_id", hit.LinkID)
		return nil
	}

	u.metrics.IncHitRecorded("applied")
	u.metrics.ObserveAnalyticsIngestLag(u.now().Sub(hit.Timestamp))
	return nil
}
