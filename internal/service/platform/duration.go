package platform

import (
	"math"
	"regexp"
	"strconv"
)

var isoDurationRegex = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration converts an ISO-8601 duration such as "PT4M13S" into whole
// seconds. It returns nil for empty, malformed or zero-length input, since a
// zero here would read as a real zero-length video, and for totals beyond
// math.MaxInt32 seconds.
func ParseISODuration(s string) *int {
	m := isoDurationRegex.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return nil
	}

	var total int64
	for i, unit := range []int{86400, 3600, 60, 1} {
		part := m[i+1]
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n > math.MaxInt32/int64(unit) {
			return nil
		}
		total += n * int64(unit)
		if total > math.MaxInt32 {
			return nil
		}
	}

	if total == 0 {
		return nil
	}
	secs := int(total)
	return &secs
}
