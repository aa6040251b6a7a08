package overcast

import (
	"strings"
	"time"
)

var releaseDateLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2006-01-02",
}

var yearlessLayouts = []string{
	"Jan 2",
	"January 2",
}

// parseReleaseDate reads the date that leads an episode caption such as
// "Mar 4 • 52 min left". Dates without a year are placed in the most recent
// year that does not put them in the future. Unparseable captions yield the
// zero time.
func parseReleaseDate(caption string, now time.Time) time.Time {
	text := caption
	for _, sep := range []string{"•", "·", " - "} {
		if i := strings.Index(text, sep); i >= 0 {
			text = text[:i]
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}
	}

	for _, layout := range releaseDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t
		}
	}

	for _, layout := range yearlessLayouts {
		t, err := time.Parse(layout, text)
		if err != nil {
			continue
		}
		dated := time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if dated.After(now) {
			dated = dated.AddDate(-1, 0, 0)
		}
		return dated
	}
	return time.Time{}
}
