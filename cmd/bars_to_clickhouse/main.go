// Command bars_to_clickhouse runs the resampling pipeline and exports the
// finished bar tables into ClickHouse. Connection settings come from the
// environment, matching the other ingestion tooling.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tickbars/services/clickhouse"
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
	in := flag.String("in", "", "Input tick CSVs, comma-separated paths or globs")
	tfs := flag.String("tf", mustEnv("TIMEFRAMES", "1m,5m,15m"), "Timeframes, comma-separated")
	priceScale := flag.String("price-scale", mustEnv("PRICE_SCALE", "1"), "Raw price divisor")
	tz := flag.String("tz", mustEnv("SOURCE_TZ", "UTC"), "IANA timezone of zoneless source timestamps")
	cutoverDays := flag.Int("cutover-days", 14, "Calendar days before expiry at which the front contract rolls")
	outlierMult := flag.Float64("outlier-mult", 10, "Reject prices outside [median/m, median*m]; <=1 disables")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if *in == "" {
		logger.Fatal("-in is required")
	}
	timeframes, err := tick.Timeframes(*tfs)
	if err != nil {
		logger.Fatal("invalid timeframes", zap.Error(err))
	}
	scale, err := decimal.NewFromString(*priceScale)
	if err != nil {
		logger.Fatal("invalid price scale", zap.String("value", *priceScale))
	}

	runner, err := pipeline.New(pipeline.Config{
		Timeframes:          timeframes,
		RolloverCutoverDays: *cutoverDays,
		OutlierMultiple:     *outlierMult,
		PriceScale:          scale,
		SourceTimezone:      *tz,
	}, logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var paths []string
	for _, part := range strings.Split(*in, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if matches, err := filepath.Glob(part); err == nil && len(matches) > 0 {
			paths = append(paths, matches...)
		} else {
			paths = append(paths, part)
		}
	}

	result, err := runner.Run(ctx, paths)
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}

	sink, err := clickhouse.NewSink(ctx, clickhouse.Config{
		Addr:     mustEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		Database: mustEnv("CH_DATABASE", "tickbars"),
		Table:    mustEnv("CH_TABLE", "bars"),
		User:     mustEnv("CH_USER", "default"),
		Password: mustEnv("CH_PASSWORD", ""),
	}, logger)
	if err != nil {
		logger.Fatal("clickhouse connect", zap.Error(err))
	}
	defer sink.Close()

	if err := sink.EnsureTable(ctx); err != nil {
		logger.Fatal("ensure table", zap.Error(err))
	}
	for key, bars := range result.Bars {
		if err := sink.InsertBars(ctx, key.Root, key.Timeframe, bars); err != nil {
			logger.Fatal("export bars",
				zap.String("symbol", key.Root),
				zap.String("timeframe", key.Timeframe),
				zap.Error(err))
		}
	}
}
