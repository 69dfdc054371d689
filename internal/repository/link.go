package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
	"github.com/marcel-gle/gb-qr-tracker/internal/store"
)

const linkColumns = `
	id, destination, active, owner_id,
	COALESCE(campaign_id, ''), COALESCE(business_id, ''), COALESCE(target_id, ''), COALESCE(template_id, ''),
	campaign_name, is_test_data, hit_count, last_hit_at, created_at`

// GetLink retrieves a link by identifier.
// This is the hot path for redirects.
func (r *Repository) GetLink(ctx context.Context, id string) (*model.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1`

	link, err := scanLink(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify("get link", err)
	}
	return link, nil
}

// TakenIdentifiers returns identifiers equal to base or prefixed by
// base + "-". The LIKE prefix uses the text_pattern_ops index.
func (r *Repository) TakenIdentifiers(ctx context.Context, base string) ([]string, error) {
	query := `SELECT id FROM links WHERE id = $1 OR id LIKE $2 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, base, likePrefix(base+"-"))
	if err != nil {
		return nil, classify("taken identifiers", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify("taken identifiers", err)
	}
	return ids, nil
}

// CreateLinks inserts every link inside one transaction and bumps the
// campaign link totals. Any existing identifier rolls the batch back with
// store.ErrConflict.
func (r *Repository) CreateLinks(ctx context.Context, links []model.Link) error {
	if len(links) == 0 {
		return nil
	}

	insert := `
		INSERT INTO links (
			id, destination, active, owner_id, campaign_id, business_id,
			target_id, template_id, campaign_name, is_test_data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	bumpCampaign := `
		INSERT INTO campaigns (id, name, total_links)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			total_links = campaigns.total_links + EXCLUDED.total_links,
			name = CASE WHEN campaigns.name = '' THEN EXCLUDED.name ELSE campaigns.name END,
			updated_at = NOW()
	`

	type campaignBump struct {
		name  string
		links int64
	}
	bumps := make(map[string]*campaignBump)
	var order []string

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, l := range links {
			batch.Queue(insert,
				l.ID, l.Destination, l.Active, l.OwnerID,
				nullableString(l.CampaignID), nullableString(l.BusinessID),
				nullableString(l.TargetID), nullableString(l.TemplateID),
				l.CampaignName, l.IsTestData, l.CreatedAt,
			)
			if l.CampaignID == "" {
				continue
			}
			b, ok := bumps[l.CampaignID]
			if !ok {
				b = &campaignBump{name: l.CampaignName}
				bumps[l.CampaignID] = b
				order = append(order, l.CampaignID)
			}
			b.links++
		}

		results := tx.SendBatch(ctx, batch)
		for _, l := range links {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return classify("create links", err)
			}
			if tag.RowsAffected() == 0 {
				_ = results.Close()
				return fmt.Errorf("%w: identifier %q exists", store.ErrConflict, l.ID)
			}
		}
		if err := results.Close(); err != nil {
			return classify("create links", err)
		}

		for _, id := range order {
			b := bumps[id]
			if _, err := tx.Exec(ctx, bumpCampaign, id, b.name, b.links); err != nil {
				return classify("bump campaign links", err)
			}
		}
		return nil
	})
}

func scanLink(row pgx.Row) (*model.Link, error) {
	var link model.Link
	err := row.Scan(
		&link.ID,
		&link.Destination,
		&link.Active,
		&link.OwnerID,
		&link.CampaignID,
		&link.BusinessID,
		&link.TargetID,
		&link.TemplateID,
		&link.CampaignName,
		&link.IsTestData,
		&link.HitCount,
		&link.LastHitAt,
		&link.CreatedAt,
	)
	return &link, err
}

// likePrefix escapes LIKE metacharacters and appends the wildcard.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
