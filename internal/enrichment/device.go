// Package enrichment derives auxiliary client data for a verification:
// device info from the User-Agent and geolocation from the client IP.
package enrichment

import (
	"strings"

	"github.com/mssola/useragent"

	"kycverify/internal/verification/models"
)

const unknown = "Unknown"

// ParseUserAgent returns nil for an empty header.
func ParseUserAgent(header string) *models.DeviceInfo {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	ua := useragent.New(header)
	browser, _ := ua.Browser()

	info := &models.DeviceInfo{
		Browser: orUnknown(browser),
		OS:      orUnknown(ua.OSInfo().Name),
		Device:  deviceKind(ua),
		Mobile:  ua.Mobile(),
	}
	return info
}

// DisplayName renders "Browser on OS" for logs and dashboards.
func DisplayName(info *models.DeviceInfo) string {
	if info == nil {
		return "Unknown Device"
	}
	return info.Browser + " on " + info.OS
}

func deviceKind(ua *useragent.UserAgent) string {
	switch {
	case ua.Bot():
		return "bot"
	case ua.Mobile():
		if p := ua.Platform(); p != "" {
			return p
		}
		return "mobile"
	default:
		return "desktop"
	}
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return unknown
	}
	return s
}
