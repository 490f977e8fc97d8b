// Package sanity rejects erroneous ticks before aggregation: non-positive
// prices or sizes, absolute price bounds, outliers against a trailing
// rolling median, and per-contract timestamp regressions.
package sanity

import (
	"github.com/shopspring/decimal"
)

// Reason classifies why a tick was rejected. ReasonNone means keep.
type Reason int

const (
	ReasonNone Reason = iota
	NonPositivePrice
	NonPositiveSize
	PriceBelowMinimum
	PriceAboveMaximum
	PriceOutlier
	OutOfOrderTimestamp
	numReasons
)

var reasonNames = [numReasons]string{
	"keep",
	"non_positive_price",
	"non_positive_size",
	"price_below_minimum",
	"price_above_maximum",
	"price_outlier",
	"out_of_order_timestamp",
}

func (r Reason) String() string {
	if r < 0 || r >= numReasons {
		return "unknown"
	}
	return reasonNames[r]
}

// Reasons lists every rejection reason, for histogram iteration.
func Reasons() []Reason {
	out := make([]Reason, 0, numReasons-1)
	for r := NonPositivePrice; r < numReasons; r++ {
		out = append(out, r)
	}
	return out
}

const (
	DefaultMedianWindow    = 256
	DefaultOutlierMultiple = 5.0
)

// Config for one filter instance. Zero-valued bounds disable that check.
type Config struct {
	// OutlierMultiple rejects prices outside [median/mult, median*mult].
	// Values <= 1 disable the outlier check.
	OutlierMultiple float64
	// MedianWindow is how many accepted prices the trailing median spans.
	MedianWindow int
	// MinPrice / MaxPrice are the operator-supplied absolute sanity bounds.
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
}

// Filter holds per-contract-tag state. A tag's state is only ever touched
// by the single stream processing that tag, so there is no locking here;
// parallelism must be partitioned by tag (the pipeline partitions by file).
type Filter struct {
	cfg      Config
	mult     decimal.Decimal
	useMult  bool
	tags     map[string]*tagState
	rejected [numReasons]int64
}

type tagState struct {
	lastTs  int64
	hasLast bool
	median  *rollingMedian
}

func New(cfg Config) *Filter {
	f := &Filter{cfg: cfg, tags: make(map[string]*tagState)}
	if cfg.OutlierMultiple > 1 {
		f.mult = decimal.NewFromFloat(cfg.OutlierMultiple)
		f.useMult = true
	}
	return f
}

// Check classifies one tick for the given contract tag. ReasonNone means
// keep; the tick then becomes part of the trailing state. Deterministic:
// identical input sequences produce identical verdicts and counts.
func (f *Filter) Check(tag string, ts int64, price decimal.Decimal, size int64) Reason {
	if r := f.classify(tag, ts, price, size); r != ReasonNone {
		f.rejected[r]++
		return r
	}
	st := f.tag(tag)
	st.lastTs = ts
	st.hasLast = true
	st.median.Add(price)
	return ReasonNone
}

func (f *Filter) classify(tag string, ts int64, price decimal.Decimal, size int64) Reason {
	if price.Sign() <= 0 {
		return NonPositivePrice
	}
	if size <= 0 {
		return NonPositiveSize
	}
	if f.cfg.MinPrice.Sign() > 0 && price.Cmp(f.cfg.MinPrice) < 0 {
		return PriceBelowMinimum
	}
	if f.cfg.MaxPrice.Sign() > 0 && price.Cmp(f.cfg.MaxPrice) > 0 {
		return PriceAboveMaximum
	}
	st := f.tag(tag)
	if f.useMult {
		if med, ok := st.median.Median(); ok && med.Sign() > 0 {
			if price.Cmp(med.Mul(f.mult)) > 0 || price.Cmp(med.Div(f.mult)) < 0 {
				return PriceOutlier
			}
		}
	}
	if st.hasLast && ts < st.lastTs {
		return OutOfOrderTimestamp
	}
	return ReasonNone
}

func (f *Filter) tag(tag string) *tagState {
	st, ok := f.tags[tag]
	if !ok {
		st = &tagState{median: newRollingMedian(f.cfg.MedianWindow)}
		f.tags[tag] = st
	}
	return st
}

// Rejections returns the per-reason histogram for this filter instance.
func (f *Filter) Rejections() map[Reason]int64 {
	out := make(map[Reason]int64, numReasons-1)
	for r := NonPositivePrice; r < numReasons; r++ {
		if f.rejected[r] > 0 {
			out[r] = f.rejected[r]
		}
	}
	return out
}

// TotalRejected is the sum over all reasons.
func (f *Filter) TotalRejected() int64 {
	var n int64
	for r := NonPositivePrice; r < numReasons; r++ {
		n += f.rejected[r]
	}
	return n
}
