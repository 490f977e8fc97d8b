// Package resample folds a sorted tick stream into epoch-aligned OHLC bars
// in a single forward pass. Memory is O(1) in the tick count: one open
// accumulator per (tag, timeframe), ticks are discarded once folded.
package resample

import (
	"fmt"

	"tickbars/services/tick"
)

// EmitFunc receives each completed bar in bucket order. Returning an error
// aborts the pass; bars already emitted remain a valid prefix.
type EmitFunc func(tick.OHLCBar) error

// Accumulator reduces one ordered tick stream at one timeframe. Input must
// already be ascending by timestamp; the accumulator never re-sorts and
// rejects regressions outright.
type Accumulator struct {
	tf   tick.Timeframe
	emit EmitFunc

	open   bool
	start  int64
	bar    tick.OHLCBar
	lastTs int64
}

func NewAccumulator(tf tick.Timeframe, emit EmitFunc) (*Accumulator, error) {
	if tf.Dur <= 0 {
		return nil, fmt.Errorf("invalid timeframe %+v", tf)
	}
	if emit == nil {
		return nil, fmt.Errorf("nil emit func")
	}
	return &Accumulator{tf: tf, emit: emit}, nil
}

// Add folds one tick. A timestamp exactly on a bucket boundary opens that
// bucket (half-open intervals), never closes into the previous one.
func (a *Accumulator) Add(t tick.Tick) error {
	if a.open && t.Ts < a.lastTs {
		return fmt.Errorf("tick out of order: %d after %d", t.Ts, a.lastTs)
	}
	bs := a.tf.BucketStart(t.Ts)
	if a.open && bs != a.start {
		if err := a.emit(a.bar); err != nil {
			return err
		}
		a.open = false
	}
	if !a.open {
		a.open = true
		a.start = bs
		a.bar = tick.OHLCBar{
			BucketStart: bs,
			Open:        t.Price,
			High:        t.Price,
			Low:         t.Price,
			Close:       t.Price,
			Volume:      t.Size,
			TickCount:   1,
		}
		a.lastTs = t.Ts
		return nil
	}
	if t.Price.Cmp(a.bar.High) > 0 {
		a.bar.High = t.Price
	}
	if t.Price.Cmp(a.bar.Low) < 0 {
		a.bar.Low = t.Price
	}
	a.bar.Close = t.Price
	a.bar.Volume += t.Size
	a.bar.TickCount++
	a.lastTs = t.Ts
	return nil
}

// Flush emits the bar for the bucket in progress, if any. Call once the
// input is exhausted; a cancelled run skips Flush so no bar is emitted for
// a bucket that never genuinely closed.
func (a *Accumulator) Flush() error {
	if !a.open {
		return nil
	}
	a.open = false
	return a.emit(a.bar)
}

// Rebucket derives coarser bars from finer ones using the same alignment
// rule: open first, high max, low min, close last, volume and tick counts
// summed. Resampling 1m output to 5m this way equals resampling the raw
// ticks to 5m directly. Gap bars in the input are skipped.
func Rebucket(bars []tick.OHLCBar, tf tick.Timeframe, emit EmitFunc) error {
	var (
		open  bool
		start int64
		cur   tick.OHLCBar
	)
	for _, b := range bars {
		if b.Gap {
			continue
		}
		bs := tf.BucketStart(b.BucketStart)
		if open && bs != start {
			if err := emit(cur); err != nil {
				return err
			}
			open = false
		}
		if !open {
			open = true
			start = bs
			cur = b
			cur.BucketStart = bs
			continue
		}
		if b.High.Cmp(cur.High) > 0 {
			cur.High = b.High
		}
		if b.Low.Cmp(cur.Low) < 0 {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
		cur.TickCount += b.TickCount
	}
	if open {
		return emit(cur)
	}
	return nil
}

// FillGaps inserts synthetic bars for empty buckets between consecutive
// bars: previous close carried as O=H=L=C, zero volume, zero ticks. Input
// must be sorted by bucket start. Emission of gap bars is an explicit
// configuration choice, never implicit.
func FillGaps(bars []tick.OHLCBar, tf tick.Timeframe) []tick.OHLCBar {
	if len(bars) < 2 {
		return bars
	}
	d := tf.Dur.Nanoseconds()
	out := make([]tick.OHLCBar, 0, len(bars))
	out = append(out, bars[0])
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1]
		for bs := prev.BucketStart + d; bs < bars[i].BucketStart; bs += d {
			out = append(out, tick.OHLCBar{
				BucketStart: bs,
				Open:        prev.Close,
				High:        prev.Close,
				Low:         prev.Close,
				Close:       prev.Close,
				Gap:         true,
			})
		}
		out = append(out, bars[i])
	}
	return out
}
