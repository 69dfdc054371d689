package model

import "time"

// Totals are the derived campaign counters. They may lag the underlying
// hits and can be recomputed from them at any time.
type Totals struct {
	Targets        int64 `json:"targets"`
	Links          int64 `json:"links"`
	Hits           int64 `json:"hits"`
	UniqueVisitors int64 `json:"unique_ips"`
}

// Campaign groups links for aggregation.
type Campaign struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Totals    Totals     `json:"totals"`
	LastHitAt *time.Time `json:"last_hit_at,omitempty"`
}

// Business carries per-business hit counters.
type Business struct {
	ID        string     `json:"id"`
	HitCount  int64      `json:"hit_count"`
	LastHitAt *time.Time `json:"last_hit_at,omitempty"`
}

// UniqueVisitor marks that a hashed client IP was seen in a campaign.
// At most one exists per (CampaignID, IPHash).
type UniqueVisitor struct {
	CampaignID string    `json:"campaign_id"`
	IPHash     string    `json:"ip_hash"`
	FirstSeen  time.Time `json:"first_seen"`
}
