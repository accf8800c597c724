package jls

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Wall-clock values are exchanged as 64-bit fixed-point timestamps: whole
// seconds since the epoch in the upper bits and a fractional second at 2^-30
// resolution (roughly 1 ns) in the lower 30 bits. The representable range is
// about ±272 years around the epoch.

// timeEpoch is 2018-01-01T00:00:00Z as Unix seconds.
const timeEpoch int64 = 1514764800

// timeQ is the fractional-second resolution in bits.
const timeQ = 30

// TimestampFromFloat converts seconds since the epoch to a fixed-point
// timestamp.
func TimestampFromFloat(seconds float64) int64 {
	scaled := seconds * float64(int64(1)<<timeQ)
	if scaled < 0 {
		return int64(scaled - 0.5)
	}
	return int64(scaled + 0.5)
}

// TimestampToFloat converts a fixed-point timestamp to seconds since the
// epoch.
func TimestampToFloat(ts int64) float64 {
	return float64(ts) / float64(int64(1)<<timeQ)
}

// TimestampFromTime converts a time.Time to a fixed-point timestamp.
func TimestampFromTime(t time.Time) int64 {
	sec := t.Unix() - timeEpoch
	frac := (int64(t.Nanosecond())<<timeQ + 500000000) / 1000000000
	return sec<<timeQ + frac
}

// TimestampToTime converts a fixed-point timestamp to a time.Time in UTC.
func TimestampToTime(ts int64) time.Time {
	sec := ts >> timeQ
	frac := ts - sec<<timeQ
	nsec := (frac*1000000000 + (1 << (timeQ - 1))) >> timeQ
	return time.Unix(sec+timeEpoch, nsec).UTC()
}

// ParseDuration parses a duration as seconds. A bare number is seconds; a
// number suffixed with s, m, h, or d scales accordingly.
func ParseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	scale := 1.0
	switch s[len(s)-1] {
	case 's':
		s = s[:len(s)-1]
	case 'm':
		scale = 60
		s = s[:len(s)-1]
	case 'h':
		scale = 3600
		s = s[:len(s)-1]
	case 'd':
		scale = 86400
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return v * scale, nil
}
