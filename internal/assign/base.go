package assign

import (
	"regexp"
	"strings"

	"github.com/marcel-gle/gb-qr-tracker/internal/identifier"
)

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

// fallbackBase is used when a record yields no usable characters.
const fallbackBase = "biz"

// SanitizeID replaces every run of non-alphanumeric characters with a single
// hyphen and trims hyphens from both ends.
func SanitizeID(value string) string {
	v := strings.TrimSpace(value)
	v = nonAlnum.ReplaceAllString(v, "-")
	return strings.Trim(v, "-")
}

// BaseIdentifier derives the readable base for a business from its name and
// postcode, e.g. "Bäckerei Schmidt", "10115" gives "B-ckerei-Schmidt-10115".
func BaseIdentifier(name, postcode string) string {
	base := SanitizeID(name)
	if pc := SanitizeID(postcode); pc != "" {
		if base != "" {
			base = base + "-" + pc
		} else {
			base = pc
		}
	}
	if len(base) < 2 {
		if base == "" {
			return fallbackBase
		}
		return fallbackBase + "-" + base
	}
	if len(base) > identifier.MaxLength {
		base = strings.TrimRight(base[:identifier.MaxLength], "-")
	}
	return base
}
