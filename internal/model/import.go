package model

import "time"

// ImportRecord is one row of a bulk import batch.
type ImportRecord struct {
	// BaseIdentifier is the readable prefix the final identifier is built on.
	BaseIdentifier string `json:"base_identifier"`

	Destination  string `json:"destination"`
	OwnerID      string `json:"owner_id,omitempty"`
	CampaignID   string `json:"campaign_id,omitempty"`
	BusinessID   string `json:"business_id,omitempty"`
	TargetID     string `json:"target_id,omitempty"`
	TemplateID   string `json:"template_id,omitempty"`
	CampaignName string `json:"campaign_name,omitempty"`
	IsTestData   bool   `json:"is_test_data,omitempty"`
}

// ToLink builds the active Link a record becomes under identifier id.
func (r ImportRecord) ToLink(id string, now time.Time) Link {
	return Link{
		ID:           id,
		Destination:  r.Destination,
		Active:       true,
		OwnerID:      r.OwnerID,
		CampaignID:   r.CampaignID,
		BusinessID:   r.BusinessID,
		TargetID:     r.TargetID,
		TemplateID:   r.TemplateID,
		CampaignName: r.CampaignName,
		IsTestData:   r.IsTestData,
		CreatedAt:    now,
	}
}

// Assignment records the identifier chosen for one import record.
type Assignment struct {
	Index      int    `json:"index"` // position in the input batch
	Base       string `json:"base"`
	Identifier string `json:"identifier"`
}
