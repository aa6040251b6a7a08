package duration

import (
	"testing"

	"overcast-sonos/internal/models"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"1 hr 2 min left", 3720},
		{"30 min left", 1800},
		{"45 min left", 2700},
		{"2 hrs left", 7200},
		{"1 hour 5 minutes left", 3900},
		{"  3 MIN LEFT ", 180},
		{"0 min left", 0},
		{"", models.DurationUnknown},
		{"played", models.DurationUnknown},
		{"in progress", models.DurationUnknown},
	}

	for _, tc := range cases {
		if got := Parse(tc.in); got != tc.want {
			t.Fatalf("Parse(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseHugeNumberDegradesToUnknown(t *testing.T) {
	if got := Parse("99999999999999999999999 min left"); got != models.DurationUnknown {
		t.Fatalf("expected unknown for overflowing quantity, got %d", got)
	}
}
