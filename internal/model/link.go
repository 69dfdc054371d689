// Package model defines domain entities for the application.
package model

import (
	"net/url"
	"strconv"
	"time"
)

// Link maps a public identifier to a destination URL.
// The identifier is immutable once created and is never reused.
type Link struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	Active      bool   `json:"active"`
	OwnerID     string `json:"owner_id,omitempty"`

	// Optional back-references used for aggregation.
	CampaignID   string `json:"campaign_id,omitempty"`
	BusinessID   string `json:"business_id,omitempty"`
	TargetID     string `json:"target_id,omitempty"`
	TemplateID   string `json:"template_id,omitempty"`
	CampaignName string `json:"campaign_name,omitempty"`

	IsTestData bool `json:"is_test_data,omitempty"`

	HitCount  int64      `json:"hit_count"`
	LastHitAt *time.Time `json:"last_hit_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// HasValidDestination reports whether the destination is an absolute
// http(s) URL with a host.
func (l *Link) HasValidDestination() bool {
	return IsValidDestination(l.Destination)
}

// IsValidDestination reports whether raw parses as an http or https URL
// with a non-empty host.
func IsValidDestination(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// CachedLink represents link data stored in Redis cache.
// Uses string types for Redis hash compatibility.
type CachedLink struct {
	Destination  string `redis:"destination"`
	Active       string `redis:"active"` // "1" or "0"
	OwnerID      string `redis:"owner_id"`
	CampaignID   string `redis:"campaign_id"`
	BusinessID   string `redis:"business_id"`
	TargetID     string `redis:"target_id"`
	TemplateID   string `redis:"template_id"`
	CampaignName string `redis:"campaign_name"`
	TestData     string `redis:"test_data"`  // "1" or "0"
	CreatedAt    string `redis:"created_at"` // Unix timestamp
}

// ToLink converts CachedLink to Link domain model.
// Counters are not cached and come back zero.
func (c *CachedLink) ToLink(id string) *Link {
	link := &Link{
		ID:           id,
		Destination:  c.Destination,
		Active:       c.Active == "1",
		OwnerID:      c.OwnerID,
		CampaignID:   c.CampaignID,
		BusinessID:   c.BusinessID,
		TargetID:     c.TargetID,
		TemplateID:   c.TemplateID,
		CampaignName: c.CampaignName,
		IsTestData:   c.TestData == "1",
	}

	if c.CreatedAt != "" {
		if ts, err := strconv.ParseInt(c.CreatedAt, 10, 64); err == nil {
			link.CreatedAt = time.Unix(ts, 0).UTC()
		}
	}

	return link
}

// ToCachedLink converts Link domain model to CachedLink.
func (l *Link) ToCachedLink() *CachedLink {
	cached := &CachedLink{
		Destination:  l.Destination,
		Active:       boolToString(l.Active),
		OwnerID:      l.OwnerID,
		CampaignID:   l.CampaignID,
		BusinessID:   l.BusinessID,
		TargetID:     l.TargetID,
		TemplateID:   l.TemplateID,
		CampaignName: l.CampaignName,
		TestData:     boolToString(l.IsTestData),
	}
	if !l.CreatedAt.IsZero() {
		cached.CreatedAt = strconv.FormatInt(l.CreatedAt.Unix(), 10)
	}
	return cached
}

// boolToString converts boolean to "1" or "0".
func boolToString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
