package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

type visitorKey struct {
	campaignID string
	ipHash     string
}

// Memory is a mutex-serialized Store for tests and local development.
type Memory struct {
	mu         sync.Mutex
	links      map[string]model.Link
	campaigns  map[string]model.Campaign
	businesses map[string]model.Business
	hits       map[string]model.Hit
	testHits   map[string]model.Hit
	visitors   map[visitorKey]model.UniqueVisitor
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		links:      make(map[string]model.Link),
		campaigns:  make(map[string]model.Campaign),
		businesses: make(map[string]model.Business),
		hits:       make(map[string]model.Hit),
		testHits:   make(map[string]model.Hit),
		visitors:   make(map[visitorKey]model.UniqueVisitor),
	}
}

// PutLink inserts or replaces a link.
func (m *Memory) PutLink(link model.Link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[link.ID] = link
}

// PutCampaign inserts or replaces a campaign.
func (m *Memory) PutCampaign(c model.Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = c
}

// GetLink returns a copy of the stored link.
func (m *Memory) GetLink(ctx context.Context, id string) (*model.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &link, nil
}

// RecordHit applies the hit under the store lock.
func (m *Memory) RecordHit(ctx context.Context, hit model.Hit, delta HitDelta) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if delta.Synthetic {
		if _, ok := m.testHits[hit.ID]; ok {
			return false, nil
		}
		m.testHits[hit.ID] = hit
		return true, nil
	}

	if _, ok := m.hits[hit.ID]; ok {
		return false, nil
	}
	m.hits[hit.ID] = hit

	if link, ok := m.links[delta.LinkID]; ok {
		link.HitCount++
		link.LastHitAt = MaxTime(link.LastHitAt, delta.At)
		m.links[link.ID] = link
	}

	if delta.CampaignID != "" {
		c := m.campaigns[delta.CampaignID]
		c.ID = delta.CampaignID
		c.Totals.Hits++
		c.LastHitAt = MaxTime(c.LastHitAt, delta.At)

		if delta.IPHash != "" {
			key := visitorKey{campaignID: delta.CampaignID, ipHash: delta.IPHash}
			if _, seen := m.visitors[key]; !seen {
				m.visitors[key] = model.UniqueVisitor{
					CampaignID: delta.CampaignID,
					IPHash:     delta.IPHash,
					FirstSeen:  delta.At,
				}
				c.Totals.UniqueVisitors++
			}
		}
		m.campaigns[c.ID] = c
	}

	if delta.BusinessID != "" {
		b := m.businesses[delta.BusinessID]
		b.ID = delta.BusinessID
		b.HitCount++
		b.LastHitAt = MaxTime(b.LastHitAt, delta.At)
		m.businesses[b.ID] = b
	}

	return true, nil
}

// TakenIdentifiers scans link IDs for base and its suffixed forms.
func (m *Memory) TakenIdentifiers(ctx context.Context, base string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := base + "-"
	var taken []string
	for id := range m.links {
		if id == base || strings.HasPrefix(id, prefix) {
			taken = append(taken, id)
		}
	}
	sort.Strings(taken)
	return taken, nil
}

// CreateLinks inserts all links or none.
func (m *Memory) CreateLinks(ctx context.Context, links []model.Link) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		if _, ok := m.links[l.ID]; ok {
			return fmt.Errorf("%w: identifier %q exists", ErrConflict, l.ID)
		}
		if _, ok := seen[l.ID]; ok {
			return fmt.Errorf("%w: identifier %q repeated in batch", ErrConflict, l.ID)
		}
		seen[l.ID] = struct{}{}
	}

	for _, l := range links {
		m.links[l.ID] = l
		if l.CampaignID != "" {
			c := m.campaigns[l.CampaignID]
			c.ID = l.CampaignID
			if c.Name == "" {
				c.Name = l.CampaignName
			}
			c.Totals.Links++
			m.campaigns[c.ID] = c
		}
	}
	return nil
}

// GetCampaign returns a copy of the campaign.
func (m *Memory) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// GetBusiness returns a copy of the business counters.
func (m *Memory) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

// HitCount returns the number of recorded hits, synthetic ones excluded.
func (m *Memory) HitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}

// TestHitCount returns the number of recorded synthetic hits.
func (m *Memory) TestHitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.testHits)
}

// PurgeExpiredHits drops hits whose expiry is at or before now.
func (m *Memory) PurgeExpiredHits(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, set := range []map[string]model.Hit{m.hits, m.testHits} {
		for id, h := range set {
			if h.ExpiresAt != nil && !h.ExpiresAt.After(now) {
				delete(set, id)
				n++
			}
		}
	}
	return n, nil
}

// RecountCampaign recomputes the campaign totals from links, hits and
// unique visitor markers and stores them.
func (m *Memory) RecountCampaign(ctx context.Context, campaignID string) (model.Totals, error) {
	if err := ctx.Err(); err != nil {
		return model.Totals{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[campaignID]
	if !ok {
		return model.Totals{}, ErrNotFound
	}

	var totals model.Totals
	targets := make(map[string]struct{})
	for _, l := range m.links {
		if l.CampaignID != campaignID {
			continue
		}
		totals.Links++
		if l.TargetID != "" {
			targets[l.TargetID] = struct{}{}
		}
	}
	totals.Targets = int64(len(targets))
	for _, h := range m.hits {
		if h.CampaignID == campaignID {
			totals.Hits++
		}
	}
	for key := range m.visitors {
		if key.campaignID == campaignID {
			totals.UniqueVisitors++
		}
	}

	c.Totals = totals
	m.campaigns[campaignID] = c
	return totals, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close(context.Context) error { return nil }
