package analytics

import (
	"fmt"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/marcel-gle/gb-qr-tracker/internal/identifier"
	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

// ValidateHit checks a hit read back from the stream.
func ValidateHit(hit model.Hit) error {
	if hit.ID == "" {
		return fmt.Errorf("id is required")
	}
	if _, err := ulid.ParseStrict(hit.ID); err != nil {
		return fmt.Errorf("id must be a ULID: %w", err)
	}
	if !identifier.IsValid(hit.LinkID) {
		return fmt.Errorf("link_id is invalid")
	}
	if hit.Timestamp.IsZero() {
		return fmt.Errorf("ts must be set")
	}
	switch hit.Origin {
	case model.OriginEdge, model.OriginDirect:
	default:
		return fmt.Errorf("hit_origin %q is unknown", hit.Origin)
	}
	if utf8.RuneCountInString(hit.UserAgent) > model.MaxUserAgentLen {
		return fmt.Errorf("user_agent too long")
	}
	if utf8.RuneCountInString(hit.Referer) > model.MaxRefererLen {
		return fmt.Errorf("referer too long")
	}
	return nil
}
