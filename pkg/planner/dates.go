package planner

import (
	"fmt"
	"strings"
	"time"
)

// fallbackDays is how far in the future a malformed date lands.
const fallbackDays = 7

// ParseDate parses a DDMMYYYY input into an ISO 8601 UTC-midnight instant.
//
// Returns:
//   - (iso, "")       for a valid date
//   - ("", "")        for an empty or all-zero input (no date, no warning)
//   - (fallback, w)   for a malformed input; fallback is now+7 days at UTC
//     midnight and w names the problem
//
// A DD-MM-YYYY value is first normalized to the compact form.
func ParseDate(input string, now time.Time) (string, string) {
	raw := strings.TrimSpace(input)
	if len(raw) == 10 && raw[2] == '-' && raw[5] == '-' {
		raw = raw[:2] + raw[3:5] + raw[6:]
	}
	if raw == "" || strings.Trim(raw, "0") == "" {
		return "", ""
	}
	if len(raw) != 8 || !allDigits(raw) {
		return fallbackDate(now), fmt.Sprintf("%q is not DDMMYYYY, using today+7", strings.TrimSpace(input))
	}
	if _, err := time.Parse("02012006", raw); err != nil {
		return fallbackDate(now), fmt.Sprintf("%q is not a valid calendar date, using today+7", strings.TrimSpace(input))
	}
	return raw[4:] + "-" + raw[2:4] + "-" + raw[:2] + "T00:00:00Z", ""
}

func fallbackDate(now time.Time) string {
	return now.UTC().AddDate(0, 0, fallbackDays).Format("2006-01-02") + "T00:00:00Z"
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
