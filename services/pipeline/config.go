package pipeline

import (
	"fmt"
	"runtime"

	"github.com/shopspring/decimal"

	"tickbars/services/rollover"
	"tickbars/services/sanity"
	"tickbars/services/tick"
)

// Config is the explicit, enumerated run configuration. Nothing here is
// guessed at run time; missing values fail Validate, not mid-stream.
type Config struct {
	// Timeframes to aggregate in one pass. At least one.
	Timeframes []tick.Timeframe

	// RolloverPolicy is "days-before-expiry" (default) or "volume-crossover".
	RolloverPolicy string
	// RolloverCutoverDays is N in the days-before-expiry rule.
	RolloverCutoverDays int

	// OutlierMultiple rejects prices outside [median/m, median*m]; <=1 disables.
	OutlierMultiple float64
	// MedianWindow is the trailing window of the streaming median.
	MedianWindow int
	// MinPrice / MaxPrice are absolute sanity bounds; zero disables.
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal

	// EmitGapBars fills empty buckets with synthetic previous-close bars.
	EmitGapBars bool

	// PriceScale divides raw prices (1e9 for fixed-point nano feeds, 1 for
	// plain decimals). Required.
	PriceScale decimal.Decimal
	// SourceTimezone is the IANA zone of zoneless timestamps; "" means UTC.
	SourceTimezone string

	// BatchSize bounds each file read; 0 means parser.DefaultBatchSize.
	BatchSize int
	// Workers bounds file-level parallelism; 0 means GOMAXPROCS.
	Workers int
	// RejectWarnFraction flags the run when rejected/read exceeds it.
	RejectWarnFraction float64
}

const DefaultRejectWarnFraction = 0.5

func (c *Config) Validate() error {
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("config: at least one timeframe required")
	}
	for _, tf := range c.Timeframes {
		if tf.Dur <= 0 {
			return fmt.Errorf("config: invalid timeframe %q", tf.Name)
		}
	}
	switch c.RolloverPolicy {
	case "", "days-before-expiry", "volume-crossover":
	default:
		return fmt.Errorf("config: unknown rollover policy %q", c.RolloverPolicy)
	}
	if c.RolloverCutoverDays < 0 {
		return fmt.Errorf("config: rollover cutover days must be >= 0")
	}
	if c.OutlierMultiple < 0 {
		return fmt.Errorf("config: outlier multiple must not be negative")
	}
	if c.PriceScale.Sign() <= 0 {
		return fmt.Errorf("config: price scale required")
	}
	if c.RejectWarnFraction < 0 || c.RejectWarnFraction > 1 {
		return fmt.Errorf("config: reject warn fraction must be in [0,1]")
	}
	return nil
}

func (c *Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// fileWorkers bounds file-level parallelism. Volume-crossover decisions
// depend on the order volume observations arrive, so that policy
// processes files sequentially in declared month order.
func (c *Config) fileWorkers() int {
	if c.RolloverPolicy == "volume-crossover" {
		return 1
	}
	return c.workers()
}

func (c *Config) rejectWarnFraction() float64 {
	if c.RejectWarnFraction > 0 {
		return c.RejectWarnFraction
	}
	return DefaultRejectWarnFraction
}

// newPolicy builds one policy instance per root symbol so volume state is
// never shared across series.
func (c *Config) newPolicy() rollover.Policy {
	if c.RolloverPolicy == "volume-crossover" {
		return rollover.NewVolumeCrossover()
	}
	days := c.RolloverCutoverDays
	if days <= 0 {
		days = rollover.DefaultCutoverDays
	}
	return rollover.DaysBeforeExpiry{Days: days}
}

func (c *Config) filterConfig() sanity.Config {
	return sanity.Config{
		OutlierMultiple: c.OutlierMultiple,
		MedianWindow:    c.MedianWindow,
		MinPrice:        c.MinPrice,
		MaxPrice:        c.MaxPrice,
	}
}
