package tick

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a fixed bucket width. Name is the canonical label used in
// output tables ("5m", "1h", ...); custom durations use the Go duration form.
type Timeframe struct {
	Name string
	Dur  time.Duration
}

var fixedTimeframes = []Timeframe{
	{"1m", time.Minute},
	{"5m", 5 * time.Minute},
	{"15m", 15 * time.Minute},
	{"30m", 30 * time.Minute},
	{"1h", time.Hour},
	{"2h", 2 * time.Hour},
	{"4h", 4 * time.Hour},
	{"12h", 12 * time.Hour},
	{"1d", 24 * time.Hour},
}

// ParseTimeframe accepts one of the fixed labels or any explicit positive
// duration ("90s", "3h30m").
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, tf := range fixedTimeframes {
		if tf.Name == s {
			return tf, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Timeframe{}, fmt.Errorf("unsupported timeframe %q", s)
	}
	if d <= 0 {
		return Timeframe{}, fmt.Errorf("timeframe must be positive, got %q", s)
	}
	return Timeframe{Name: s, Dur: d}, nil
}

// Timeframes parses a comma-separated list, e.g. "1m,5m,1h".
func Timeframes(s string) ([]Timeframe, error) {
	var out []Timeframe
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		tf, err := ParseTimeframe(part)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no timeframes in %q", s)
	}
	return out, nil
}

// BucketStart floors a UTC-nanosecond timestamp onto the timeframe grid
// anchored at the Unix epoch. Half-open buckets: a timestamp exactly on a
// boundary starts that bucket.
func (tf Timeframe) BucketStart(ts int64) int64 {
	d := tf.Dur.Nanoseconds()
	r := ts % d
	if r < 0 {
		r += d
	}
	return ts - r
}
