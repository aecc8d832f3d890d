package transcript

import (
	"fmt"
	"regexp"
	"strconv"
)

var timestampPattern = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{1,2})(?:\.(\d{1,3}))?$`)

// ParseTimestamp converts an HH:MM:SS.mmm clock string to milliseconds.
// The fractional part is read as an integer count of milliseconds, so
// "00:00:01.45" is 1045, not 1450. A missing fraction counts as zero.
func ParseTimestamp(s string) (int64, error) {
	m := timestampPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, &FormatError{Field: "timestamp", Value: s}
	}

	var fields [4]int64
	for i, part := range m[1:] {
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0, &FormatError{Field: "timestamp", Value: s, Err: err}
		}
		fields[i] = n
	}

	hours, minutes, seconds, millis := fields[0], fields[1], fields[2], fields[3]
	return ((hours*60+minutes)*60+seconds)*1000 + millis, nil
}

// FormatTimestamp renders milliseconds as HH:MM:SS.mmm. Negative values are
// clamped to zero.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	millis := ms % 1000
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", secs/3600, (secs/60)%60, secs%60, millis)
}

var intervalPattern = regexp.MustCompile(`(\d{2}:\d{2}:\d{1,2}(?:\.\d{0,3})?)\s(\d{2}:\d{2}:\d{1,2}(?:\.\d{0,3})?)`)

// ParseInterval decodes the "start end" pair carried on an INTERVAL line.
func ParseInterval(s string) (start, end int64, err error) {
	m := intervalPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, &FormatError{Field: "interval", Value: s}
	}
	if start, err = ParseTimestamp(trimDot(m[1])); err != nil {
		return 0, 0, err
	}
	if end, err = ParseTimestamp(trimDot(m[2])); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// trimDot drops a trailing "." left by a timestamp with an empty fraction.
func trimDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}
