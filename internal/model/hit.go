package model

import (
	"time"
	"unicode/utf8"
)

// Field caps applied to request-derived hit fields.
const (
	MaxUserAgentLen = 1024
	MaxBrowserLen   = 128
	MaxOSLen        = 128
	MaxRefererLen   = 512
)

// Origin records which trust path produced a hit.
type Origin string

const (
	OriginEdge   Origin = "edge"
	OriginDirect Origin = "direct"
)

// DeviceType is the coarse device classification of a hit.
type DeviceType string

const (
	DeviceBot     DeviceType = "bot"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceDesktop DeviceType = "desktop"
	DeviceOther   DeviceType = "other"
)

// Geo is an approximate location resolved from the client IP.
type Geo struct {
	Country string   `json:"country,omitempty"`
	Region  string   `json:"region,omitempty"`
	City    string   `json:"city,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
	Source  string   `json:"source,omitempty"` // "maxmind" or "api"
}

// IsZero reports whether no location field was resolved.
func (g *Geo) IsZero() bool {
	return g == nil || (g.Country == "" && g.Region == "" && g.City == "" && g.Lat == nil && g.Lon == nil)
}

// Hit is one recorded redirect event. It is immutable once written and its
// ID doubles as the idempotency key of the aggregate update.
type Hit struct {
	ID     string `json:"id"` // ULID (time-sortable)
	LinkID string `json:"link_id"`

	CampaignID   string `json:"campaign_id,omitempty"`
	BusinessID   string `json:"business_id,omitempty"`
	TargetID     string `json:"target_id,omitempty"`
	OwnerID      string `json:"owner_id,omitempty"`
	TemplateID   string `json:"template_id,omitempty"`
	CampaignName string `json:"campaign_name,omitempty"`

	Timestamp time.Time `json:"ts"`

	UserAgent  string     `json:"user_agent,omitempty"`
	DeviceType DeviceType `json:"device_type"`
	Browser    string     `json:"browser,omitempty"`
	OS         string     `json:"os,omitempty"`
	Referer    string     `json:"referer,omitempty"`

	Geo    *Geo   `json:"geo,omitempty"`
	IPHash string `json:"ip_hash,omitempty"`

	Origin       Origin `json:"hit_origin"`
	OriginalHost string `json:"original_host,omitempty"`

	IsTestData bool       `json:"is_test_data,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Truncate cuts s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
