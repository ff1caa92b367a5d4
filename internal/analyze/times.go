package analyze

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// relativePattern matches relative time expressions like -2h, -30m, -1d.
var relativePattern = regexp.MustCompile(`^-(\d+)([hmd])$`)

// absoluteLayouts are the accepted absolute timestamp forms, tried in
// order.
var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime interprets a command-line time argument: either an offset
// relative to now (-2h, -30m, -1d) or an absolute timestamp.
func ParseTime(s string, now time.Time) (time.Time, error) {
	if m := relativePattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time offset %q: %w", s, err)
		}

		var unit time.Duration
		switch m[2] {
		case "h":
			unit = time.Hour
		case "m":
			unit = time.Minute
		case "d":
			unit = 24 * time.Hour
		}

		return now.Add(-time.Duration(n) * unit), nil
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time %q: use RFC 3339 or a relative offset like -2h, -30m, -1d", s)
}
