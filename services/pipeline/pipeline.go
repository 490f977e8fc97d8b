// Package pipeline wires parser, rollover resolver, sanity filter and
// resampler into one run: tick files in, OHLC bar tables plus a
// diagnostics record out. Files are processed by independent workers;
// rollover needs only the static file metadata, so workers never
// coordinate on tick order.
package pipeline

import (
	"context"
	"io"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tickbars/services/normalize"
	"tickbars/services/parser"
	"tickbars/services/resample"
	"tickbars/services/rollover"
	"tickbars/services/sanity"
	"tickbars/services/tick"
)

// SeriesKey identifies one output bar table.
type SeriesKey struct {
	Root      string
	Timeframe string
}

// Result is the only artifact that outlives a run.
type Result struct {
	Bars        map[SeriesKey][]tick.OHLCBar
	Diagnostics Diagnostics
}

type Runner struct {
	cfg    Config
	norm   *normalize.Normalizer
	logger *zap.Logger
}

// New validates the configuration up front so every fatal config error
// surfaces before any file is touched.
func New(cfg Config, logger *zap.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	norm, err := normalize.New(normalize.Config{
		SourceTimezone: cfg.SourceTimezone,
		PriceScale:     cfg.PriceScale,
	})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, norm: norm, logger: logger}, nil
}

// Run processes the given tick files to completion or cancellation. On
// cancellation the returned error is ctx.Err() and no partial result leaks;
// otherwise bars are complete and diagnostics cover every file.
func (r *Runner) Run(ctx context.Context, paths []string) (*Result, error) {
	metas := make([]parser.FileMeta, 0, len(paths))
	for _, p := range paths {
		m, err := parser.ParseFilename(p)
		if err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool {
		a, b := metas[i], metas[j]
		if a.Root != b.Root {
			return a.Root < b.Root
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})

	// One resolver per root symbol; duplicate declarations fail here.
	resolvers := make(map[string]*rollover.Resolver)
	byRoot := make(map[string][]parser.FileMeta)
	for _, m := range metas {
		byRoot[m.Root] = append(byRoot[m.Root], m)
	}
	for root, ms := range byRoot {
		res, err := rollover.New(root, ms, r.cfg.newPolicy())
		if err != nil {
			return nil, err
		}
		resolvers[root] = res
	}

	results := make([]fileResult, len(metas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.fileWorkers())
	for i, m := range metas {
		i, m := i, m
		g.Go(func() error {
			fr, err := r.processFile(gctx, m, resolvers[m.Root])
			if err != nil {
				return err
			}
			results[i] = fr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return r.merge(results), nil
}

type fileResult struct {
	meta parser.FileMeta
	bars map[string][]tick.OHLCBar // per timeframe, sorted by bucket
	diag Diagnostics
}

type accKey struct {
	gen int
	tf  string
}

type accEntry struct {
	gen  int
	tf   string
	acc  *resample.Accumulator
	bars []tick.OHLCBar
}

func (r *Runner) processFile(ctx context.Context, meta parser.FileMeta, resolver *rollover.Resolver) (fileResult, error) {
	rd, err := parser.NewReader(meta.Path, r.norm, r.cfg.BatchSize)
	if err != nil {
		return fileResult{}, err
	}
	if err := rd.Open(); err != nil {
		return fileResult{}, err
	}
	defer rd.Close()

	filter := sanity.New(r.cfg.filterConfig())
	accs := make(map[accKey]*accEntry)
	var kept, unresolved, offContract int64
	contracts := make(map[int]string)

	for {
		select {
		case <-ctx.Done():
			return fileResult{}, ctx.Err()
		default:
		}
		batch, readErr := rd.NextBatch()
		if readErr != nil && readErr != io.EOF {
			return fileResult{}, readErr
		}
		for _, t := range batch {
			res := resolver.Resolve(t)
			if obs := t.Contract; !obs.IsZero() {
				resolver.Observe(obs, t.Ts, t.Size)
			} else if res.Resolved {
				resolver.Observe(res.Contract, t.Ts, t.Size)
			}
			if !res.Resolved {
				unresolved++
				continue
			}
			if !t.Contract.IsZero() && t.Contract != res.Contract {
				offContract++
				continue
			}
			t.Contract = res.Contract
			tag := res.Contract.String()
			if filter.Check(tag, t.Ts, t.Price, t.Size) != sanity.ReasonNone {
				continue
			}
			kept++
			contracts[res.Generation] = tag
			for _, tf := range r.cfg.Timeframes {
				key := accKey{gen: res.Generation, tf: tf.Name}
				e, ok := accs[key]
				if !ok {
					e = &accEntry{gen: res.Generation, tf: tf.Name}
					acc, err := resample.NewAccumulator(tf, func(b tick.OHLCBar) error {
						e.bars = append(e.bars, b)
						return nil
					})
					if err != nil {
						return fileResult{}, err
					}
					e.acc = acc
					accs[key] = e
				}
				if err := e.acc.Add(t); err != nil {
					return fileResult{}, err
				}
			}
		}
		if readErr == io.EOF {
			break
		}
	}

	// Input exhausted: every open bucket has genuinely closed.
	for _, e := range accs {
		if err := e.acc.Flush(); err != nil {
			return fileResult{}, err
		}
	}

	bars := collectFileBars(accs)
	diag := Diagnostics{
		TicksRead:      rd.RowsRead() - rd.CorruptRecords(),
		CorruptRecords: rd.CorruptRecords(),
		Kept:           kept,
		Unresolved:     unresolved,
		OffContract:    offContract,
	}
	diag.RejectedByReason = make(map[string]int64)
	for reason, n := range filter.Rejections() {
		diag.RejectedByReason[reason.String()] = n
	}
	for _, gen := range sortedGens(contracts) {
		diag.ContractsResolved = append(diag.ContractsResolved, contracts[gen])
	}
	diag.Files = []FileDiagnostics{fileDiagnostics(
		meta.Path, rd.RowsRead(), rd.CorruptRecords(), kept, unresolved, offContract, filter)}

	r.logger.Debug("file processed",
		zap.String("file", meta.Path),
		zap.Int64("rows", rd.RowsRead()),
		zap.Int64("corrupt", rd.CorruptRecords()),
		zap.Int64("kept", kept))
	return fileResult{meta: meta, bars: bars, diag: diag}, nil
}

// collectFileBars orders each timeframe's bars by bucket start; equal
// buckets keep generation order so cutover-split partials combine with
// the earlier generation first.
func collectFileBars(accs map[accKey]*accEntry) map[string][]tick.OHLCBar {
	entries := make([]*accEntry, 0, len(accs))
	for _, e := range accs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].gen < entries[j].gen })

	bars := make(map[string][]tick.OHLCBar)
	for _, e := range entries {
		bars[e.tf] = append(bars[e.tf], e.bars...)
	}
	for tf := range bars {
		sort.SliceStable(bars[tf], func(i, j int) bool {
			return bars[tf][i].BucketStart < bars[tf][j].BucketStart
		})
	}
	return bars
}

func sortedGens(m map[int]string) []int {
	gens := make([]int, 0, len(m))
	for g := range m {
		gens = append(gens, g)
	}
	sort.Ints(gens)
	return gens
}

// merge concatenates per-file bars in declared month order, combines
// bars sharing a bucket and optionally fills gaps. File results arrive
// in worker completion order but are merged by index, so output is
// deterministic.
func (r *Runner) merge(results []fileResult) *Result {
	out := &Result{Bars: make(map[SeriesKey][]tick.OHLCBar)}
	out.Diagnostics.RunID = uuid.NewString()

	for _, fr := range results {
		out.Diagnostics.Merge(fr.diag)
		for tf, bars := range fr.bars {
			key := SeriesKey{Root: fr.meta.Root, Timeframe: tf}
			out.Bars[key] = append(out.Bars[key], bars...)
		}
	}
	tfByName := make(map[string]tick.Timeframe, len(r.cfg.Timeframes))
	for _, tf := range r.cfg.Timeframes {
		tfByName[tf.Name] = tf
	}
	for key, bars := range out.Bars {
		sort.SliceStable(bars, func(i, j int) bool { return bars[i].BucketStart < bars[j].BucketStart })
		bars = combineBuckets(bars)
		if r.cfg.EmitGapBars {
			bars = resample.FillGaps(bars, tfByName[key.Timeframe])
		}
		out.Bars[key] = bars
	}

	if out.Diagnostics.TicksRead > 0 {
		frac := float64(out.Diagnostics.TotalRejected()) / float64(out.Diagnostics.TicksRead)
		out.Diagnostics.HighRejectRate = frac > r.cfg.rejectWarnFraction()
	}
	out.Diagnostics.LogSummary(r.logger)
	return out
}

// combineBuckets folds bars sharing a bucket start into one bar. A
// rollover cutover inside a bucket leaves two partial bars from adjacent
// generations: open comes from the earlier one, close from the later,
// extremes and volumes merge, so no kept-tick volume is lost. Identical
// duplicates collapse to a single bar.
func combineBuckets(bars []tick.OHLCBar) []tick.OHLCBar {
	if len(bars) < 2 {
		return bars
	}
	out := bars[:0]
	cur := bars[0]
	for _, b := range bars[1:] {
		if b.BucketStart != cur.BucketStart {
			out = append(out, cur)
			cur = b
			continue
		}
		if sameBar(cur, b) {
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
	return append(out, cur)
}

func sameBar(a, b tick.OHLCBar) bool {
	return a.BucketStart == b.BucketStart && a.Volume == b.Volume &&
		a.TickCount == b.TickCount && a.Gap == b.Gap &&
		a.Open.Equal(b.Open) && a.High.Equal(b.High) &&
		a.Low.Equal(b.Low) && a.Close.Equal(b.Close)
}
