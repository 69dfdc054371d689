package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/marcel-gle/gb-qr-tracker/internal/geo"
	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

// RecorderConfig controls hit derivation.
type RecorderConfig struct {
	// Locator resolves geo for public IPs. Nil disables geo.
	Locator geo.Locator
	// StoreIPHash enables the salted IP hash. Ignored without a salt.
	StoreIPHash bool
	IPHashSalt  string
	// HitTTL sets the hit expiry marker. Zero keeps hits forever.
	HitTTL time.Duration
	// SyntheticUserAgents are user agent prefixes of monitoring probes.
	SyntheticUserAgents []string
}

// Recorder turns a Capture into an immutable Hit.
type Recorder struct {
	cfg RecorderConfig
	now func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(cfg RecorderConfig) *Recorder {
	var prefixes []string
	for _, p := range cfg.SyntheticUserAgents {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	cfg.SyntheticUserAgents = prefixes
	return &Recorder{cfg: cfg, now: time.Now}
}

// Derive builds the hit. Geo lookups honor ctx; a failed lookup only
// leaves the location empty.
func (r *Recorder) Derive(ctx context.Context, c Capture) model.Hit {
	at := c.At
	if at.IsZero() {
		at = r.now()
	}
	at = at.UTC()

	link := c.Link
	hit := model.Hit{
		ID:           ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		LinkID:       link.ID,
		CampaignID:   link.CampaignID,
		BusinessID:   link.BusinessID,
		TargetID:     link.TargetID,
		OwnerID:      link.OwnerID,
		TemplateID:   link.TemplateID,
		CampaignName: link.CampaignName,
		Timestamp:    at,
		UserAgent:    model.Truncate(c.UserAgent, model.MaxUserAgentLen),
		Referer:      model.Truncate(strings.TrimSpace(c.Referer), model.MaxRefererLen),
		Origin:       c.Origin,
		OriginalHost: c.OriginalHost,
		IsTestData:   link.IsTestData || r.isSynthetic(c.UserAgent),
	}
	if hit.Origin == "" {
		hit.Origin = model.OriginDirect
	}

	hit.DeviceType, hit.Browser, hit.OS = ParseUserAgent(c.UserAgent)

	if geo.IsPublic(c.ClientIP) {
		if r.cfg.Locator != nil {
			hit.Geo = r.cfg.Locator.Lookup(ctx, c.ClientIP)
		}
		if r.cfg.StoreIPHash && r.cfg.IPHashSalt != "" {
			hit.IPHash = HashIP(r.cfg.IPHashSalt, c.ClientIP)
		}
	}

	if r.cfg.HitTTL > 0 {
		exp := at.Add(r.cfg.HitTTL)
		hit.ExpiresAt = &exp
	}

	return hit
}

func (r *Recorder) isSynthetic(ua string) bool {
	for _, p := range r.cfg.SyntheticUserAgents {
		if strings.HasPrefix(ua, p) {
			return true
		}
	}
	return false
}
