package header

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxDelaySeconds is the largest delta-seconds value representable as a
// time.Duration.
const maxDelaySeconds = math.MaxInt64 / int64(time.Second)

// ParseRetryAfter decodes an RFC 7231 §7.1.3 Retry-After header value.
//
// A value made only of digits is interpreted as a number of seconds.
// Anything else is parsed as an HTTP-date and the result is the time left
// until that date, measured from now. The returned duration is negative
// when the date is already in the past; use [Clamp] before sleeping.
//
// The boolean result is false when the value is empty or cannot be parsed.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if isDigits(value) {
		secs, err := strconv.ParseInt(value, 10, 64)
		if err != nil || secs > maxDelaySeconds {
			// only overflow can fail here
			return time.Duration(math.MaxInt64), true
		}
		return time.Duration(secs) * time.Second, true
	}

	date, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	return date.Sub(now), true
}

// Clamp returns d, or zero if d is negative.
func Clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
