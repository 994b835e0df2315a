package youtube

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// YouTube only emits week/day/time components; year and month designators are rejected.
var durationPattern = regexp.MustCompile(`^P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseDuration parses an ISO 8601 duration such as PT4M13S.
func ParseDuration(value string) (time.Duration, error) {
	match := durationPattern.FindStringSubmatch(value)
	if match == nil || value == "P" || value == "PT" {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", value)
	}

	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute}
	var total time.Duration
	for i, unit := range units {
		if match[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(match[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q: %w", value, err)
		}
		total += time.Duration(n) * unit
	}
	if match[5] != "" {
		seconds, err := strconv.ParseFloat(match[5], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q: %w", value, err)
		}
		total += time.Duration(seconds * float64(time.Second))
	}
	return total, nil
}
