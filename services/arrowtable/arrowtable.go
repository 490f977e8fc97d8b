// Package arrowtable encodes the output bar table as an Arrow IPC stream,
// the columnar hand-off format for the presentation layer. Prices stay
// decimal-exact inside the pipeline; the float conversion happens only at
// this boundary.
package arrowtable

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"tickbars/services/tick"
)

// Schema of one bar table. bucket_start is UTC nanoseconds, epoch aligned.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "timeframe", Type: arrow.BinaryTypes.String},
	{Name: "bucket_start", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Int64},
	{Name: "tick_count", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "gap", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

// Write streams one series' bars as a single Arrow record.
func Write(w io.Writer, symbol, timeframe string, bars []tick.OHLCBar) error {
	if len(bars) == 0 {
		return fmt.Errorf("no bars to encode for %s %s", symbol, timeframe)
	}
	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, Schema)
	defer b.Release()

	symbols := b.Field(0).(*array.StringBuilder)
	tfs := b.Field(1).(*array.StringBuilder)
	starts := b.Field(2).(*array.Int64Builder)
	opens := b.Field(3).(*array.Float64Builder)
	highs := b.Field(4).(*array.Float64Builder)
	lows := b.Field(5).(*array.Float64Builder)
	closes := b.Field(6).(*array.Float64Builder)
	volumes := b.Field(7).(*array.Int64Builder)
	counts := b.Field(8).(*array.Uint32Builder)
	gaps := b.Field(9).(*array.BooleanBuilder)

	for _, bar := range bars {
		symbols.Append(symbol)
		tfs.Append(timeframe)
		starts.Append(bar.BucketStart)
		opens.Append(bar.Open.InexactFloat64())
		highs.Append(bar.High.InexactFloat64())
		lows.Append(bar.Low.InexactFloat64())
		closes.Append(bar.Close.InexactFloat64())
		volumes.Append(bar.Volume)
		counts.Append(bar.TickCount)
		gaps.Append(bar.Gap)
	}

	record := b.NewRecord()
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(Schema), ipc.WithAllocator(pool))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	return writer.Close()
}
