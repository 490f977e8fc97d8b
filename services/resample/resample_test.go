package resample

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tickbars/services/tick"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func at(h, m, s, ms int) int64 {
	return time.Date(2025, 3, 10, h, m, s, ms*1e6, time.UTC).UnixNano()
}

func collect(t *testing.T, tf tick.Timeframe, ticks []tick.Tick) []tick.OHLCBar {
	t.Helper()
	var bars []tick.OHLCBar
	acc, err := NewAccumulator(tf, func(b tick.OHLCBar) error {
		bars = append(bars, b)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, tk := range ticks {
		if err := acc.Add(tk); err != nil {
			t.Fatal(err)
		}
	}
	if err := acc.Flush(); err != nil {
		t.Fatal(err)
	}
	return bars
}

func mkTicks(points []struct {
	ts    int64
	price string
	size  int64
}) []tick.Tick {
	out := make([]tick.Tick, len(points))
	for i, p := range points {
		out[i] = tick.Tick{Ts: p.ts, Price: d(p.price), Size: p.size}
	}
	return out
}

func TestMinuteBarsWorkedExample(t *testing.T) {
	ticks := mkTicks([]struct {
		ts    int64
		price string
		size  int64
	}{
		{at(10, 0, 0, 100), "100.25", 1},
		{at(10, 0, 30, 0), "100.50", 2},
		{at(10, 1, 0, 0), "100.10", 1},
	})
	tf := tick.Timeframe{Name: "1m", Dur: time.Minute}
	bars := collect(t, tf, ticks)

	if len(bars) != 2 {
		t.Fatalf("got %d bars", len(bars))
	}
	b0 := bars[0]
	if b0.BucketStart != at(10, 0, 0, 0) {
		t.Fatalf("bucket start %d", b0.BucketStart)
	}
	if !b0.Open.Equal(d("100.25")) || !b0.High.Equal(d("100.50")) ||
		!b0.Low.Equal(d("100.25")) || !b0.Close.Equal(d("100.50")) {
		t.Fatalf("bar 0 = %s", b0)
	}
	if b0.Volume != 3 || b0.TickCount != 2 {
		t.Fatalf("bar 0 volume/count = %d/%d", b0.Volume, b0.TickCount)
	}

	b1 := bars[1]
	if b1.BucketStart != at(10, 1, 0, 0) {
		t.Fatalf("bucket start %d", b1.BucketStart)
	}
	// The 10:01:00.000 tick sits exactly on the boundary: it opens the
	// second bucket, never closes into the first.
	if !b1.Open.Equal(d("100.10")) || !b1.Close.Equal(d("100.10")) || b1.Volume != 1 {
		t.Fatalf("bar 1 = %s", b1)
	}
}

func TestBarInvariants(t *testing.T) {
	ticks := genTicks(at(9, 0, 0, 0), 3000)
	tf := tick.Timeframe{Name: "5m", Dur: 5 * time.Minute}
	for _, b := range collect(t, tf, ticks) {
		lo := b.Open
		if b.Close.Cmp(lo) < 0 {
			lo = b.Close
		}
		hi := b.Open
		if b.Close.Cmp(hi) > 0 {
			hi = b.Close
		}
		if b.Low.Cmp(lo) > 0 || b.High.Cmp(hi) < 0 {
			t.Fatalf("invariant violated: %s", b)
		}
	}
}

func TestRebucketIdempotent(t *testing.T) {
	ticks := genTicks(at(9, 0, 0, 0), 5000)
	oneMin := tick.Timeframe{Name: "1m", Dur: time.Minute}
	fiveMin := tick.Timeframe{Name: "5m", Dur: 5 * time.Minute}

	direct := collect(t, fiveMin, ticks)

	minute := collect(t, oneMin, ticks)
	var derived []tick.OHLCBar
	if err := Rebucket(minute, fiveMin, func(b tick.OHLCBar) error {
		derived = append(derived, b)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if len(direct) != len(derived) {
		t.Fatalf("bar count: direct %d, derived %d", len(direct), len(derived))
	}
	for i := range direct {
		a, b := direct[i], derived[i]
		if a.BucketStart != b.BucketStart || !a.Open.Equal(b.Open) ||
			!a.High.Equal(b.High) || !a.Low.Equal(b.Low) ||
			!a.Close.Equal(b.Close) || a.Volume != b.Volume || a.TickCount != b.TickCount {
			t.Fatalf("bar %d differs:\n direct  %s\n derived %s", i, a, b)
		}
	}
}

func TestVolumeConservation(t *testing.T) {
	ticks := genTicks(at(9, 0, 0, 0), 2000)
	var want int64
	for _, tk := range ticks {
		want += tk.Size
	}
	var got int64
	for _, b := range collect(t, tick.Timeframe{Name: "15m", Dur: 15 * time.Minute}, ticks) {
		got += b.Volume
	}
	if got != want {
		t.Fatalf("volume: bars %d, ticks %d", got, want)
	}
}

func TestOutOfOrderAddFails(t *testing.T) {
	acc, err := NewAccumulator(tick.Timeframe{Name: "1m", Dur: time.Minute}, func(tick.OHLCBar) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if err := acc.Add(tick.Tick{Ts: at(10, 0, 30, 0), Price: d("1"), Size: 1}); err != nil {
		t.Fatal(err)
	}
	if err := acc.Add(tick.Tick{Ts: at(10, 0, 29, 0), Price: d("1"), Size: 1}); err == nil {
		t.Fatal("expected out-of-order error")
	}
}

func TestNoPartialBarWithoutFlush(t *testing.T) {
	var bars []tick.OHLCBar
	acc, _ := NewAccumulator(tick.Timeframe{Name: "1m", Dur: time.Minute}, func(b tick.OHLCBar) error {
		bars = append(bars, b)
		return nil
	})
	_ = acc.Add(tick.Tick{Ts: at(10, 0, 1, 0), Price: d("1"), Size: 1})
	_ = acc.Add(tick.Tick{Ts: at(10, 0, 2, 0), Price: d("2"), Size: 1})
	// The bucket has not closed and Flush was not called: nothing emitted.
	if len(bars) != 0 {
		t.Fatalf("got %d bars before flush", len(bars))
	}
	if err := acc.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 {
		t.Fatalf("got %d bars after flush", len(bars))
	}
	// Flush is idempotent.
	if err := acc.Flush(); err != nil || len(bars) != 1 {
		t.Fatalf("second flush: %v, %d bars", err, len(bars))
	}
}

func TestFillGaps(t *testing.T) {
	tf := tick.Timeframe{Name: "1m", Dur: time.Minute}
	min := int64(time.Minute)
	bars := []tick.OHLCBar{
		{BucketStart: 0, Open: d("10"), High: d("12"), Low: d("9"), Close: d("11"), Volume: 5, TickCount: 3},
		{BucketStart: 3 * min, Open: d("13"), High: d("13"), Low: d("13"), Close: d("13"), Volume: 1, TickCount: 1},
	}
	filled := FillGaps(bars, tf)
	if len(filled) != 4 {
		t.Fatalf("got %d bars", len(filled))
	}
	for i := 1; i <= 2; i++ {
		g := filled[i]
		if !g.Gap {
			t.Fatalf("bar %d not a gap", i)
		}
		if !g.Open.Equal(d("11")) || !g.Close.Equal(d("11")) || !g.High.Equal(d("11")) || !g.Low.Equal(d("11")) {
			t.Fatalf("gap bar %d = %s", i, g)
		}
		if g.Volume != 0 || g.TickCount != 0 {
			t.Fatalf("gap bar %d has volume", i)
		}
	}
	if filled[3].BucketStart != 3*min {
		t.Fatalf("last bar moved: %d", filled[3].BucketStart)
	}
}

// genTicks builds a deterministic, ascending tick stream with a small LCG
// so repeated runs are bit-identical.
func genTicks(start int64, n int) []tick.Tick {
	out := make([]tick.Tick, 0, n)
	seed := uint64(42)
	ts := start
	for j := 0; j < n; j++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		ts += int64(seed%2000) * int64(time.Millisecond)
		cents := 10000 + int64(seed>>33)%500
		out = append(out, tick.Tick{
			Ts:    ts,
			Price: decimal.New(cents, -2),
			Size:  1 + int64(seed%5),
		})
	}
	return out
}
