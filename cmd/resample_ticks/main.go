// Command resample_ticks turns raw tick CSV files into OHLC bar tables:
// one CSV per (symbol, timeframe), optionally an Arrow IPC copy for the
// charting layer. Fatal input problems abort with a non-zero exit; bad
// rows are counted in the logged diagnostics, never fatal.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tickbars/services/arrowtable"
	"tickbars/services/pipeline"
	"tickbars/services/tick"
)

func mustEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func main() {
	in := flag.String("in", "", "Input tick CSVs, comma-separated paths or globs (SYMBOL_YYYY_MM.csv)")
	out := flag.String("out", "bars", "Output directory for bar CSVs")
	tfs := flag.String("tf", mustEnv("TIMEFRAMES", "1m"), "Timeframes, comma-separated (1m,5m,15m,30m,1h,2h,4h,12h,1d or explicit durations)")
	gap := flag.Bool("gap-bars", false, "Emit synthetic gap bars for empty buckets")
	arrowOut := flag.String("arrow", "", "Also write Arrow IPC tables into this directory")
	priceScale := flag.String("price-scale", mustEnv("PRICE_SCALE", "1"), "Raw price divisor (1e9 for fixed-point nano feeds)")
	tz := flag.String("tz", mustEnv("SOURCE_TZ", "UTC"), "IANA timezone of zoneless source timestamps")
	policy := flag.String("rollover-policy", mustEnv("ROLLOVER_POLICY", "days-before-expiry"), "Rollover cutover rule: days-before-expiry or volume-crossover")
	cutoverDays := flag.Int("cutover-days", 14, "Calendar days before expiry at which the front contract rolls")
	outlierMult := flag.Float64("outlier-mult", 10, "Reject prices outside [median/m, median*m]; <=1 disables")
	minPrice := flag.String("min-price", mustEnv("SANITY_MIN_PRICE", ""), "Absolute minimum sane price (empty disables)")
	maxPrice := flag.String("max-price", mustEnv("SANITY_MAX_PRICE", ""), "Absolute maximum sane price (empty disables)")
	batchSize := flag.Int("batch-size", 0, "Rows per read batch (default 200000)")
	workers := flag.Int("workers", 0, "Concurrent file workers (default GOMAXPROCS)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if *in == "" {
		logger.Fatal("-in is required")
	}
	paths, err := expandInputs(*in)
	if err != nil {
		logger.Fatal("resolve inputs", zap.Error(err))
	}

	cfg, err := buildConfig(*tfs, *policy, *cutoverDays, *outlierMult, *minPrice, *maxPrice,
		*priceScale, *tz, *gap, *batchSize, *workers)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	runner, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx, paths)
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		logger.Fatal("create output dir", zap.Error(err))
	}
	for key, bars := range result.Bars {
		path := filepath.Join(*out, fmt.Sprintf("%s_%s.csv", key.Root, key.Timeframe))
		if err := writeBarCSV(path, bars); err != nil {
			logger.Fatal("write bars", zap.String("path", path), zap.Error(err))
		}
		logger.Info("bar table written",
			zap.String("path", path),
			zap.Int("bars", len(bars)))
		if *arrowOut != "" {
			if err := writeArrow(*arrowOut, key, bars); err != nil {
				logger.Fatal("write arrow table", zap.Error(err))
			}
		}
	}
}

func buildConfig(tfs, policy string, cutoverDays int, outlierMult float64,
	minPrice, maxPrice, priceScale, tz string, gap bool, batchSize, workers int) (pipeline.Config, error) {

	timeframes, err := tick.Timeframes(tfs)
	if err != nil {
		return pipeline.Config{}, err
	}
	scale, err := decimal.NewFromString(priceScale)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("invalid price scale %q", priceScale)
	}
	cfg := pipeline.Config{
		Timeframes:          timeframes,
		RolloverPolicy:      policy,
		RolloverCutoverDays: cutoverDays,
		OutlierMultiple:     outlierMult,
		PriceScale:          scale,
		SourceTimezone:      tz,
		EmitGapBars:         gap,
		BatchSize:           batchSize,
		Workers:             workers,
	}
	if minPrice != "" {
		if cfg.MinPrice, err = decimal.NewFromString(minPrice); err != nil {
			return pipeline.Config{}, fmt.Errorf("invalid min price %q", minPrice)
		}
	}
	if maxPrice != "" {
		if cfg.MaxPrice, err = decimal.NewFromString(maxPrice); err != nil {
			return pipeline.Config{}, fmt.Errorf("invalid max price %q", maxPrice)
		}
	}
	return cfg, nil
}

func expandInputs(in string) ([]string, error) {
	var paths []string
	for _, part := range strings.Split(in, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		matches, err := filepath.Glob(part)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			// not a glob; let the pipeline report the missing file
			paths = append(paths, part)
			continue
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input files in %q", in)
	}
	return paths, nil
}

func writeBarCSV(path string, bars []tick.OHLCBar) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if _, err := w.WriteString("timestamp_ns,open,high,low,close,volume,tick_count\n"); err != nil {
		return err
	}
	for _, b := range bars {
		line := fmt.Sprintf("%d,%s,%s,%s,%s,%d,%d\n",
			b.BucketStart, b.Open, b.High, b.Low, b.Close, b.Volume, b.TickCount)
		if _, err := w.WriteString(line); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeArrow(dir string, key pipeline.SeriesKey, bars []tick.OHLCBar) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.arrow", key.Root, key.Timeframe))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return arrowtable.Write(f, key.Root, key.Timeframe, bars)
}
