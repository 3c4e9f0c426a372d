package executor

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxRetryAfter caps the delay taken from a Retry-After header.
const MaxRetryAfter = 24 * time.Hour

// ParseRetryAfter interprets a Retry-After header value relative to now.
// It accepts delay seconds (fractions allowed) or an HTTP date. Dates in the
// past yield zero and delays beyond [MaxRetryAfter] are clamped to it. ok is
// false when the value is empty or unparseable.
func ParseRetryAfter(value string, now time.Time) (d time.Duration, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, false
		}
		if secs >= MaxRetryAfter.Seconds() {
			return MaxRetryAfter, true
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	return min(max(t.Sub(now), 0), MaxRetryAfter), true
}
