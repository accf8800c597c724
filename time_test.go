package jls

import (
	"testing"
	"time"
)

func TestTimestampFloatRoundTrip(t *testing.T) {
	for _, seconds := range []float64{0, 1, -1, 100.5, 1234567.875, -0.25} {
		ts := TimestampFromFloat(seconds)
		if got := TimestampToFloat(ts); got != seconds {
			t.Errorf("roundtrip %v = %v", seconds, got)
		}
	}
}

func TestTimestampEpoch(t *testing.T) {
	epoch := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	if ts := TimestampFromTime(epoch); ts != 0 {
		t.Errorf("epoch timestamp = %d, want 0", ts)
	}
	if got := TimestampToTime(0); !got.Equal(epoch) {
		t.Errorf("timestamp 0 = %v, want %v", got, epoch)
	}
}

func TestTimestampTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 8, 29, 13, 45, 30, 250000000, time.UTC)
	ts := TimestampFromTime(in)
	got := TimestampToTime(ts)
	if d := got.Sub(in); d > time.Nanosecond || d < -time.Nanosecond {
		t.Errorf("roundtrip drifted %v: %v -> %v", d, in, got)
	}
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"5", 5},
		{"1.5s", 1.5},
		{"2m", 120},
		{"0.5h", 1800},
		{"1d", 86400},
		{" 10 ", 10},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.in)
		if err != nil {
			t.Errorf("ParseDuration(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	for _, bad := range []string{"", "abc", "5x5m"} {
		if _, err := ParseDuration(bad); err == nil {
			t.Errorf("ParseDuration(%q) succeeded, want error", bad)
		}
	}
}
