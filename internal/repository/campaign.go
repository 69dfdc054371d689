package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
	"github.com/marcel-gle/gb-qr-tracker/internal/store"
)

// GetCampaign retrieves campaign totals.
func (r *Repository) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	query := `
		SELECT id, name, total_targets, total_links, total_hits, unique_ips, last_hit_at
		FROM campaigns
		WHERE id = $1
	`

	var c model.Campaign
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.Totals.Targets,
		&c.Totals.Links,
		&c.Totals.Hits,
		&c.Totals.UniqueVisitors,
		&c.LastHitAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify("get campaign", err)
	}
	return &c, nil
}

// GetBusiness retrieves business counters.
func (r *Repository) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	var b model.Business
	err := r.pool.QueryRow(ctx,
		`SELECT id, hit_count, last_hit_at FROM businesses WHERE id = $1`, id,
	).Scan(&b.ID, &b.HitCount, &b.LastHitAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify("get business", err)
	}
	return &b, nil
}

// RecountCampaign recomputes totals from links, hits and visitor markers
// and overwrites the stored counters in the same statement.
func (r *Repository) RecountCampaign(ctx context.Context, campaignID string) (model.Totals, error) {
	query := `
		UPDATE campaigns c SET
			total_targets = (SELECT COUNT(DISTINCT target_id) FROM links WHERE campaign_id = c.id AND target_id IS NOT NULL),
			total_links   = (SELECT COUNT(*) FROM links WHERE campaign_id = c.id),
			total_hits    = (SELECT COUNT(*) FROM hits WHERE campaign_id = c.id),
			unique_ips    = (SELECT COUNT(*) FROM unique_visitors WHERE campaign_id = c.id),
			updated_at    = NOW()
		WHERE c.id = $1
		RETURNING total_targets, total_links, total_hits, unique_ips
	`

	var t model.Totals
	err := r.pool.QueryRow(ctx, query, campaignID).Scan(&t.Targets, &t.Links, &t.Hits, &t.UniqueVisitors)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Totals{}, store.ErrNotFound
		}
		return model.Totals{}, classify("recount campaign", err)
	}
	return t, nil
}
