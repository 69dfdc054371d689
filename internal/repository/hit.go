package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
	"github.com/marcel-gle/gb-qr-tracker/internal/store"
)

func insertHitSQL(table string) string {
	return `
		INSERT INTO ` + table + ` (
			id, link_id, campaign_id, business_id, target_id, owner_id, template_id,
			campaign_name, ts, user_agent, device_type, browser, os, referer, geo,
			ip_hash, hit_origin, original_host, is_test_data, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO NOTHING
	`
}

const (
	bumpLinkSQL = `
		UPDATE links
		SET hit_count = hit_count + 1, last_hit_at = GREATEST(last_hit_at, $2)
		WHERE id = $1
	`
	bumpCampaignHitsSQL = `
		INSERT INTO campaigns (id, name, total_hits, last_hit_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (id) DO UPDATE SET
			total_hits = campaigns.total_hits + 1,
			last_hit_at = GREATEST(campaigns.last_hit_at, EXCLUDED.last_hit_at),
			updated_at = NOW()
	`
	bumpBusinessSQL = `
		INSERT INTO businesses (id, hit_count, last_hit_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (id) DO UPDATE SET
			hit_count = businesses.hit_count + 1,
			last_hit_at = GREATEST(businesses.last_hit_at, EXCLUDED.last_hit_at)
	`
	insertVisitorSQL = `
		INSERT INTO unique_visitors (campaign_id, ip_hash, first_seen)
		VALUES ($1, $2, $3)
		ON CONFLICT (campaign_id, ip_hash) DO NOTHING
	`
	bumpUniqueSQL = `UPDATE campaigns SET unique_ips = unique_ips + 1 WHERE id = $1`
)

// RecordHit writes the hit and every counter it touches in one
// transaction. Concurrent inserts of the same hit ID or visitor marker
// block on the unique index until the first commits, so each is counted
// once.
func (r *Repository) RecordHit(ctx context.Context, hit model.Hit, delta store.HitDelta) (bool, error) {
	table := "hits"
	if delta.Synthetic {
		table = "test_hits"
	}
	at := delta.At.UTC()
	applied := false

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, insertHitSQL(table), hitArgs(hit)...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		applied = true
		if delta.Synthetic {
			return nil
		}

		if _, err := tx.Exec(ctx, bumpLinkSQL, delta.LinkID, at); err != nil {
			return err
		}
		if delta.CampaignID != "" {
			if _, err := tx.Exec(ctx, bumpCampaignHitsSQL, delta.CampaignID, hit.CampaignName, at); err != nil {
				return err
			}
			if delta.IPHash != "" {
				tag, err := tx.Exec(ctx, insertVisitorSQL, delta.CampaignID, delta.IPHash, at)
				if err != nil {
					return err
				}
				if tag.RowsAffected() == 1 {
					if _, err := tx.Exec(ctx, bumpUniqueSQL, delta.CampaignID); err != nil {
						return err
					}
				}
			}
		}
		if delta.BusinessID != "" {
			if _, err := tx.Exec(ctx, bumpBusinessSQL, delta.BusinessID, at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, classify("record hit", err)
	}
	return applied, nil
}

func hitArgs(h model.Hit) []any {
	var geo *model.Geo
	if !h.Geo.IsZero() {
		geo = h.Geo
	}
	return []any{
		h.ID,
		h.LinkID,
		nullableString(h.CampaignID),
		nullableString(h.BusinessID),
		nullableString(h.TargetID),
		nullableString(h.OwnerID),
		nullableString(h.TemplateID),
		nullableString(h.CampaignName),
		h.Timestamp.UTC(),
		nullableString(h.UserAgent),
		string(h.DeviceType),
		nullableString(h.Browser),
		nullableString(h.OS),
		nullableString(h.Referer),
		geo,
		nullableString(h.IPHash),
		string(h.Origin),
		nullableString(h.OriginalHost),
		h.IsTestData,
		h.ExpiresAt,
	}
}

// PurgeExpiredHits deletes hits and test hits whose expiry has passed.
func (r *Repository) PurgeExpiredHits(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"hits", "test_hits"} {
		tag, err := r.pool.Exec(ctx,
			`DELETE FROM `+table+` WHERE expires_at IS NOT NULL AND expires_at <= $1`, now.UTC())
		if err != nil {
			return total, classify("purge "+table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
