// Package duration converts Overcast's human readable remaining-time captions
// ("1 hr 4 min left") into seconds.
package duration

import (
	"regexp"
	"strconv"

	"overcast-sonos/internal/models"
)

var (
	hoursPattern   = regexp.MustCompile(`(?i)(\d+)\s*(?:hrs?|hours?)\b`)
	minutesPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:mins?|minutes?)\b`)
)

// Parse returns the number of seconds described by text, or
// models.DurationUnknown when neither an hour nor a minute quantity is present.
func Parse(text string) int {
	total := 0
	found := false

	if v, ok := quantity(hoursPattern, text); ok {
		total += v * 3600
		found = true
	}
	if v, ok := quantity(minutesPattern, text); ok {
		total += v * 60
		found = true
	}

	if !found {
		return models.DurationUnknown
	}
	return total
}

func quantity(pattern *regexp.Regexp, text string) (int, bool) {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	v, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return v, true
}
