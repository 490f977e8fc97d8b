package arrowtable

import (
	"bytes"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/shopspring/decimal"

	"tickbars/services/tick"
)

func TestWriteRoundTrip(t *testing.T) {
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC).UnixNano()
	bars := []tick.OHLCBar{
		{
			BucketStart: start,
			Open:        decimal.RequireFromString("100.25"),
			High:        decimal.RequireFromString("100.50"),
			Low:         decimal.RequireFromString("100.25"),
			Close:       decimal.RequireFromString("100.50"),
			Volume:      3,
			TickCount:   2,
		},
		{
			BucketStart: start + int64(time.Minute),
			Open:        decimal.RequireFromString("100.10"),
			High:        decimal.RequireFromString("100.10"),
			Low:         decimal.RequireFromString("100.10"),
			Close:       decimal.RequireFromString("100.10"),
			Volume:      1,
			TickCount:   1,
		},
	}

	var buf bytes.Buffer
	if err := Write(&buf, "NQ", "1m", bars); err != nil {
		t.Fatal(err)
	}

	rdr, err := ipc.NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer rdr.Release()

	if !rdr.Next() {
		t.Fatal("no record in stream")
	}
	rec := rdr.Record()
	if rec.NumRows() != 2 {
		t.Fatalf("rows = %d", rec.NumRows())
	}
	if got := rec.Column(0).(*array.String).Value(0); got != "NQ" {
		t.Fatalf("symbol = %q", got)
	}
	if got := rec.Column(1).(*array.String).Value(0); got != "1m" {
		t.Fatalf("timeframe = %q", got)
	}
	if got := rec.Column(2).(*array.Int64).Value(1); got != start+int64(time.Minute) {
		t.Fatalf("bucket_start = %d", got)
	}
	if got := rec.Column(3).(*array.Float64).Value(0); got != 100.25 {
		t.Fatalf("open = %v", got)
	}
	if got := rec.Column(7).(*array.Int64).Value(0); got != 3 {
		t.Fatalf("volume = %d", got)
	}
	if got := rec.Column(8).(*array.Uint32).Value(1); got != 1 {
		t.Fatalf("tick_count = %d", got)
	}
	if rdr.Next() {
		t.Fatal("unexpected extra record")
	}
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "NQ", "1m", nil); err == nil {
		t.Fatal("expected error for empty table")
	}
}
