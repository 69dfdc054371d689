package docstore

import (
	"time"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

// Collection names.
const (
	collLinks      = "links"
	collCampaigns  = "campaigns"
	collBusinesses = "businesses"
	collHits       = "hits"
	collTestHits   = "test_hits"
	collVisitors   = "unique_visitors"
)

type linkDoc struct {
	ID           string     `bson:"_id"`
	Destination  string     `bson:"destination"`
	Active       bool       `bson:"active"`
	OwnerID      string     `bson:"owner_id,omitempty"`
	CampaignID   string     `bson:"campaign_id,omitempty"`
	BusinessID   string     `bson:"business_id,omitempty"`
	TargetID     string     `bson:"target_id,omitempty"`
	TemplateID   string     `bson:"template_id,omitempty"`
	CampaignName string     `bson:"campaign_name,omitempty"`
	IsTestData   bool       `bson:"is_test_data"`
	HitCount     int64      `bson:"hit_count"`
	LastHitAt    *time.Time `bson:"last_hit_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
}

func newLinkDoc(l model.Link) linkDoc {
	return linkDoc{
		ID:           l.ID,
		Destination:  l.Destination,
		Active:       l.Active,
		OwnerID:      l.OwnerID,
		CampaignID:   l.CampaignID,
		BusinessID:   l.BusinessID,
		TargetID:     l.TargetID,
		TemplateID:   l.TemplateID,
		CampaignName: l.CampaignName,
		IsTestData:   l.IsTestData,
		HitCount:     l.HitCount,
		LastHitAt:    l.LastHitAt,
		CreatedAt:    l.CreatedAt.UTC(),
	}
}

func (d linkDoc) toModel() *model.Link {
	return &model.Link{
		ID:           d.ID,
		Destination:  d.Destination,
		Active:       d.Active,
		OwnerID:      d.OwnerID,
		CampaignID:   d.CampaignID,
		BusinessID:   d.BusinessID,
		TargetID:     d.TargetID,
		TemplateID:   d.TemplateID,
		CampaignName: d.CampaignName,
		IsTestData:   d.IsTestData,
		HitCount:     d.HitCount,
		LastHitAt:    d.LastHitAt,
		CreatedAt:    d.CreatedAt,
	}
}

type totalsDoc struct {
	Targets        int64 `bson:"targets"`
	Links          int64 `bson:"links"`
	Hits           int64 `bson:"hits"`
	UniqueVisitors int64 `bson:"unique_ips"`
}

type campaignDoc struct {
	ID        string     `bson:"_id"`
	Name      string     `bson:"name,omitempty"`
	Totals    totalsDoc  `bson:"totals"`
	LastHitAt *time.Time `bson:"last_hit_at,omitempty"`
}

func (d campaignDoc) toModel() *model.Campaign {
	return &model.Campaign{
		ID:   d.ID,
		Name: d.Name,
		Totals: model.Totals{
			Targets:        d.Totals.Targets,
			Links:          d.Totals.Links,
			Hits:           d.Totals.Hits,
			UniqueVisitors: d.Totals.UniqueVisitors,
		},
		LastHitAt: d.LastHitAt,
	}
}

type businessDoc struct {
	ID        string     `bson:"_id"`
	HitCount  int64      `bson:"hit_count"`
	LastHitAt *time.Time `bson:"last_hit_at,omitempty"`
}

type geoDoc struct {
	Country string   `bson:"country,omitempty"`
	Region  string   `bson:"region,omitempty"`
	City    string   `bson:"city,omitempty"`
	Lat     *float64 `bson:"lat,omitempty"`
	Lon     *float64 `bson:"lon,omitempty"`
	Source  string   `bson:"source,omitempty"`
}

// hitDoc is immutable once inserted. expires_at feeds the TTL index.
// ID is left empty in upsert payloads; the filter supplies _id.
type hitDoc struct {
	ID           string     `bson:"_id,omitempty"`
	LinkID       string     `bson:"link_id"`
	CampaignID   string     `bson:"campaign_id,omitempty"`
	BusinessID   string     `bson:"business_id,omitempty"`
	TargetID     string     `bson:"target_id,omitempty"`
	OwnerID      string     `bson:"owner_id,omitempty"`
	TemplateID   string     `bson:"template_id,omitempty"`
	CampaignName string     `bson:"campaign_name,omitempty"`
	Timestamp    time.Time  `bson:"ts"`
	UserAgent    string     `bson:"user_agent,omitempty"`
	DeviceType   string     `bson:"device_type"`
	Browser      string     `bson:"browser,omitempty"`
	OS           string     `bson:"os,omitempty"`
	Referer      string     `bson:"referer,omitempty"`
	Geo          *geoDoc    `bson:"geo,omitempty"`
	IPHash       string     `bson:"ip_hash,omitempty"`
	Origin       string     `bson:"hit_origin"`
	OriginalHost string     `bson:"original_host,omitempty"`
	IsTestData   bool       `bson:"is_test_data"`
	ExpiresAt    *time.Time `bson:"expires_at,omitempty"`
}

func newHitDoc(h model.Hit) hitDoc {
	d := hitDoc{
		ID:           h.ID,
		LinkID:       h.LinkID,
		CampaignID:   h.CampaignID,
		BusinessID:   h.BusinessID,
		TargetID:     h.TargetID,
		OwnerID:      h.OwnerID,
		TemplateID:   h.TemplateID,
		CampaignName: h.CampaignName,
		Timestamp:    h.Timestamp.UTC(),
		UserAgent:    h.UserAgent,
		DeviceType:   string(h.DeviceType),
		Browser:      h.Browser,
		OS:           h.OS,
		Referer:      h.Referer,
		IPHash:       h.IPHash,
		Origin:       string(h.Origin),
		OriginalHost: h.OriginalHost,
		IsTestData:   h.IsTestData,
		ExpiresAt:    h.ExpiresAt,
	}
	if !h.Geo.IsZero() {
		d.Geo = &geoDoc{
			Country: h.Geo.Country,
			Region:  h.Geo.Region,
			City:    h.Geo.City,
			Lat:     h.Geo.Lat,
			Lon:     h.Geo.Lon,
			Source:  h.Geo.Source,
		}
	}
	return d
}

// visitorID is the marker key; one document per (campaign, hash).
func visitorID(campaignID, ipHash string) string {
	return campaignID + ":" + ipHash
}
