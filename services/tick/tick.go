// Package tick holds the core value types shared by every pipeline stage:
// ticks, contract codes, timeframes and OHLC bars.
package tick

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tick is a single trade event, already normalized: timestamp in UTC
// nanoseconds, price decimal-exact. Never mutated after the parser emits it.
type Tick struct {
	Ts       int64 // UTC nanoseconds since epoch
	Price    decimal.Decimal
	Size     int64
	Contract ContractCode
	Source   string // originating file, for diagnostics
}

// OHLCBar is one completed time bucket. BucketStart is epoch-aligned UTC
// nanoseconds; the bucket covers [BucketStart, BucketStart+timeframe).
type OHLCBar struct {
	BucketStart int64
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      int64
	TickCount   uint32
	Gap         bool // synthesized gap bar, not backed by ticks
}

func (b OHLCBar) String() string {
	return fmt.Sprintf("bar{%d o=%s h=%s l=%s c=%s v=%d n=%d}",
		b.BucketStart, b.Open, b.High, b.Low, b.Close, b.Volume, b.TickCount)
}
