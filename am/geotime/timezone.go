// Package geotime resolves user supplied timezone names into locations used
// for calendar-day boundaries.
package geotime

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teranos/waypoint/errors"
)

var timezoneByAbbreviation = map[string]string{
	"pst":  "America/Los_Angeles",
	"pdt":  "America/Los_Angeles",
	"est":  "America/New_York",
	"edt":  "America/New_York",
	"cst":  "America/Chicago",
	"cdt":  "America/Chicago",
	"mst":  "America/Denver",
	"mdt":  "America/Denver",
	"bst":  "Europe/London",
	"cet":  "Europe/Berlin",
	"cest": "Europe/Berlin",
	"ist":  "Asia/Kolkata",
	"sgt":  "Asia/Singapore",
	"jst":  "Asia/Tokyo",
	"aest": "Australia/Sydney",
}

var timezoneByPlace = map[string]string{
	"amsterdam": "Europe/Amsterdam",
	"berlin":    "Europe/Berlin",
	"munich":    "Europe/Berlin",
	"vienna":    "Europe/Vienna",
	"zurich":    "Europe/Zurich",
	"london":    "Europe/London",
	"paris":     "Europe/Paris",
	"madrid":    "Europe/Madrid",
	"rome":      "Europe/Rome",
	"new york":  "America/New_York",
	"chicago":   "America/Chicago",
	"denver":    "America/Denver",
	"seattle":   "America/Los_Angeles",
	"tokyo":     "Asia/Tokyo",
	"sydney":    "Australia/Sydney",
}

// Resolve turns configuration input into a *time.Location.
// Accepts "UTC", "local", IANA names in any capitalization, common
// abbreviations and a handful of city names.
func Resolve(input string) (*time.Location, error) {
	trimmed := strings.TrimSpace(input)
	switch strings.ToLower(trimmed) {
	case "", "utc", "z":
		return time.UTC, nil
	case "local":
		name, err := DetectLocalTimezone()
		if err != nil {
			return time.Local, nil
		}
		return time.LoadLocation(name)
	}

	name, err := NormalizeTimezone(trimmed)
	if err != nil {
		return nil, err
	}
	return time.LoadLocation(name)
}

// NormalizeTimezone attempts to resolve user input into a valid IANA timezone.
func NormalizeTimezone(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("timezone cannot be empty")
	}

	if isValidTimezone(trimmed) && !needsCanonicalCase(trimmed) {
		return trimmed, nil
	}

	if candidate := titleCase(trimmed); isValidTimezone(candidate) {
		return candidate, nil
	}

	lower := strings.ToLower(trimmed)
	if tz, ok := timezoneByAbbreviation[lower]; ok {
		return tz, nil
	}
	if tz, ok := timezoneByPlace[lower]; ok {
		return tz, nil
	}

	return "", errors.Newf("unknown timezone: %s", input)
}

// DetectLocalTimezone attempts to determine the host operating system timezone.
func DetectLocalTimezone() (string, error) {
	if tz := os.Getenv("TZ"); tz != "" && isValidTimezone(tz) {
		return tz, nil
	}

	if name := time.Now().Location().String(); name != "" && name != "Local" && isValidTimezone(name) {
		return name, nil
	}

	if data, err := os.ReadFile("/etc/timezone"); err == nil {
		if tz := titleCase(strings.TrimSpace(string(data))); isValidTimezone(tz) {
			return tz, nil
		}
	}

	if resolved, err := filepath.EvalSymlinks("/etc/localtime"); err == nil {
		if idx := strings.Index(resolved, "zoneinfo/"); idx != -1 {
			if tz := resolved[idx+len("zoneinfo/"):]; isValidTimezone(tz) {
				return tz, nil
			}
		}
	}

	return "", errors.New("could not detect local timezone")
}

func isValidTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// needsCanonicalCase flags inputs such as "europe/berlin" that LoadLocation
// may accept on case-insensitive filesystems.
func needsCanonicalCase(tz string) bool {
	for _, part := range strings.Split(tz, "/") {
		if part != "" && part[0] >= 'a' && part[0] <= 'z' {
			return true
		}
	}
	return false
}

// titleCase capitalizes each path and underscore separated segment
func titleCase(tz string) string {
	tz = strings.ReplaceAll(strings.Trim(tz, "\"'"), " ", "_")
	parts := strings.Split(tz, "/")
	for i, part := range parts {
		words := strings.Split(part, "_")
		for j, w := range words {
			if w == "" {
				continue
			}
			lower := strings.ToLower(w)
			words[j] = strings.ToUpper(lower[:1]) + lower[1:]
		}
		parts[i] = strings.Join(words, "_")
	}
	return strings.Join(parts, "/")
}
