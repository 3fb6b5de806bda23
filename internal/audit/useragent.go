package audit

import (
	"strings"
)

// UnknownField is used for any device attribute that cannot be parsed.
const UnknownField = "unknown"

// ParseUserAgent extracts a device/browser/OS tri-tuple from a raw
// user-agent string. It is a best-effort heuristic: malformed or empty
// input yields "unknown" fields, never an error.
func ParseUserAgent(ua string) DeviceInfo {
	if strings.TrimSpace(ua) == "" {
		return DeviceInfo{Device: UnknownField, Browser: UnknownField, OS: UnknownField}
	}

	lower := strings.ToLower(ua)

	return DeviceInfo{
		Device:  parseDevice(lower),
		Browser: parseBrowser(lower),
		OS:      parseOS(lower),
	}
}

func parseDevice(ua string) string {
	switch {
	case strings.Contains(ua, "bot"), strings.Contains(ua, "crawler"),
		strings.Contains(ua, "spider"), strings.Contains(ua, "curl"),
		strings.Contains(ua, "wget"):
		return "bot"
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "iphone"),
		strings.Contains(ua, "android"):
		return "mobile"
	case strings.Contains(ua, "windows"), strings.Contains(ua, "macintosh"),
		strings.Contains(ua, "linux"), strings.Contains(ua, "x11"):
		return "desktop"
	default:
		return UnknownField
	}
}

func parseBrowser(ua string) string {
	// Order matters: Chrome-family agents also advertise Safari, and
	// Edge/Opera also advertise Chrome.
	switch {
	case strings.Contains(ua, "edg/"), strings.Contains(ua, "edge/"):
		return "Edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "firefox/"):
		return "Firefox"
	case strings.Contains(ua, "chrome/"), strings.Contains(ua, "crios/"):
		return "Chrome"
	case strings.Contains(ua, "safari/"):
		return "Safari"
	case strings.Contains(ua, "msie"), strings.Contains(ua, "trident/"):
		return "Internet Explorer"
	case strings.Contains(ua, "curl/"):
		return "curl"
	default:
		return UnknownField
	}
}

func parseOS(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"),
		strings.Contains(ua, "ios"):
		return "iOS"
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os x"):
		return "macOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "linux"), strings.Contains(ua, "x11"):
		return "Linux"
	default:
		return UnknownField
	}
}
