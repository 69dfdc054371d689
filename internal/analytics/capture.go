// Package analytics derives hit records from redirect requests and hands
// them to the aggregate updater without blocking the response.
package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/mssola/user_agent"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

// Capture is the request snapshot taken on the redirect path. The client
// IP never leaves it; only a salted hash does.
type Capture struct {
	Link         model.Link
	UserAgent    string
	Referer      string
	ClientIP     string
	Origin       model.Origin
	OriginalHost string
	At           time.Time
}

// ParseUserAgent classifies a user agent string.
func ParseUserAgent(raw string) (device model.DeviceType, browser, os string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.DeviceOther, "", ""
	}

	ua := user_agent.New(raw)

	name, version := ua.Browser()
	browser = model.Truncate(strings.TrimSpace(name+" "+version), model.MaxBrowserLen)
	info := ua.OSInfo()
	os = model.Truncate(strings.TrimSpace(info.Name+" "+info.Version), model.MaxOSLen)

	return deviceType(ua, raw), browser, os
}

func deviceType(ua *user_agent.UserAgent, raw string) model.DeviceType {
	platform := ua.Platform()
	switch {
	case ua.Bot():
		return model.DeviceBot
	case isTablet(platform, raw):
		return model.DeviceTablet
	case ua.Mobile():
		return model.DeviceMobile
	case isDesktop(platform, ua.OS()):
		return model.DeviceDesktop
	default:
		return model.DeviceOther
	}
}

func isTablet(platform, raw string) bool {
	if platform == "iPad" || strings.Contains(raw, "Tablet") {
		return true
	}
	// Android tablets omit the "Mobile" token.
	return strings.Contains(raw, "Android") && !strings.Contains(raw, "Mobile")
}

func isDesktop(platform, os string) bool {
	for _, marker := range []string{"Windows", "Macintosh", "Mac OS X", "X11", "Linux", "CrOS"} {
		if strings.Contains(platform, marker) || strings.Contains(os, marker) {
			return true
		}
	}
	return false
}

// HashIP returns the hex SHA-256 of salt followed by ip.
func HashIP(salt, ip string) string {
	sum := sha256.Sum256([]byte(salt + ip))
	return hex.EncodeToString(sum[:])
}
