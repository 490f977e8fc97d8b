// Package normalize converts raw tick fields to canonical form: timestamps
// to UTC nanoseconds, prices to decimal-exact values at scale 1.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownTimezone       = errors.New("unknown timezone")
	ErrUnsupportedPriceScale = errors.New("unsupported price scale")
)

// Config declares how the source encodes timestamps and prices. Both fields
// must be explicit; the normalizer never guesses.
type Config struct {
	// SourceTimezone is the IANA zone of zoneless timestamp strings.
	// Empty means UTC. Epoch-integer timestamps are zone-independent.
	SourceTimezone string
	// PriceScale is the divisor applied to raw prices. Databento-style feeds
	// store fixed-point integers scaled by 1e9; already-decimal sources use 1.
	PriceScale decimal.Decimal
}

type Normalizer struct {
	loc   *time.Location
	scale decimal.Decimal
	// Power-of-ten scales (the common case) divide by shifting the decimal
	// exponent, which is exact regardless of precision settings.
	shift   int32
	byShift bool
}

func New(cfg Config) (*Normalizer, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.SourceTimezone); tz != "" && !strings.EqualFold(tz, "UTC") {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, tz)
		}
		loc = l
	}
	if cfg.PriceScale.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPriceScale, cfg.PriceScale)
	}
	n := &Normalizer{loc: loc, scale: cfg.PriceScale}
	if cfg.PriceScale.Coefficient().IsInt64() && cfg.PriceScale.Coefficient().Int64() == 1 {
		n.shift = -cfg.PriceScale.Exponent()
		n.byShift = true
	}
	return n, nil
}

// Zoneless layouts tried in order after the zoned ones.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp converts a raw timestamp field to UTC nanoseconds. Integer
// inputs are epoch values; the unit is inferred from magnitude (s/ms/us/ns).
func (n *Normalizer) Timestamp(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return epochToNanos(v), nil
	}
	for i, layout := range layouts {
		var t time.Time
		var err error
		if i == 0 {
			t, err = time.Parse(layout, raw)
		} else {
			t, err = time.ParseInLocation(layout, raw, n.loc)
		}
		if err == nil {
			return t.UTC().UnixNano(), nil
		}
	}
	return 0, fmt.Errorf("unparsable timestamp %q", raw)
}

// Magnitude thresholds: values below ~year 5138 in seconds, etc.
func epochToNanos(v int64) int64 {
	switch {
	case v < 1e11:
		return v * int64(time.Second)
	case v < 1e14:
		return v * int64(time.Millisecond)
	case v < 1e17:
		return v * int64(time.Microsecond)
	default:
		return v
	}
}

// Price converts a raw price field to a decimal at scale 1.
func (n *Normalizer) Price(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.Trim(strings.TrimSpace(raw), `"`))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unparsable price %q", raw)
	}
	if n.byShift {
		if n.shift == 0 {
			return d, nil
		}
		return d.Shift(n.shift), nil
	}
	return d.Div(n.scale), nil
}

// Size parses a size field as a non-negative integer. Validation of the
// value itself (zero, negative) belongs to the sanity filter.
func (n *Normalizer) Size(raw string) (int64, error) {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable size %q", raw)
	}
	return v, nil
}
