package pipeline

import (
	"sort"

	"go.uber.org/zap"

	"tickbars/services/sanity"
)

// FileDiagnostics is the per-file slice of a run's diagnostics.
type FileDiagnostics struct {
	File           string
	RowsRead       int64
	CorruptRecords int64
	Kept           int64
	Rejected       map[string]int64
	Unresolved     int64
	OffContract    int64
}

// Diagnostics is the run-level record returned to the caller. Workers each
// produce a partial record; Merge folds them associatively, so the final
// result is independent of completion order.
type Diagnostics struct {
	RunID          string
	TicksRead      int64
	CorruptRecords int64
	Kept           int64
	// RejectedByReason histograms sanity rejections by reason name.
	RejectedByReason map[string]int64
	// Unresolved ticks fell outside every declared contract range.
	Unresolved int64
	// OffContract ticks carried a symbol other than the resolved front
	// contract (back-month activity mixed into the file).
	OffContract int64
	// ContractsResolved lists the continuous-contract tags seen, in
	// generation order.
	ContractsResolved []string
	// HighRejectRate is set when rejections exceed the configured fraction
	// of ticks read. The run still completes; this flag must not be missed.
	HighRejectRate bool
	Files          []FileDiagnostics
}

// TotalRejected sums the sanity histogram (corrupt rows excluded: those
// never became ticks).
func (d *Diagnostics) TotalRejected() int64 {
	var n int64
	for _, v := range d.RejectedByReason {
		n += v
	}
	return n
}

// Merge folds another partial record into d. Contract lists are unioned;
// callers sort once at the end of the run.
func (d *Diagnostics) Merge(o Diagnostics) {
	d.TicksRead += o.TicksRead
	d.CorruptRecords += o.CorruptRecords
	d.Kept += o.Kept
	d.Unresolved += o.Unresolved
	d.OffContract += o.OffContract
	if d.RejectedByReason == nil {
		d.RejectedByReason = make(map[string]int64)
	}
	for k, v := range o.RejectedByReason {
		d.RejectedByReason[k] += v
	}
	for _, c := range o.ContractsResolved {
		if !containsStr(d.ContractsResolved, c) {
			d.ContractsResolved = append(d.ContractsResolved, c)
		}
	}
	d.Files = append(d.Files, o.Files...)
	d.HighRejectRate = d.HighRejectRate || o.HighRejectRate
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func fileDiagnostics(file string, rows, corrupt, kept, unresolved, offContract int64, f *sanity.Filter) FileDiagnostics {
	rejected := make(map[string]int64)
	for reason, n := range f.Rejections() {
		rejected[reason.String()] = n
	}
	return FileDiagnostics{
		File:           file,
		RowsRead:       rows,
		CorruptRecords: corrupt,
		Kept:           kept,
		Rejected:       rejected,
		Unresolved:     unresolved,
		OffContract:    offContract,
	}
}

// LogSummary writes the run outcome. A high reject rate logs at Warn so it
// cannot hide in an info-level stream.
func (d *Diagnostics) LogSummary(logger *zap.Logger) {
	fields := []zap.Field{
		zap.String("run_id", d.RunID),
		zap.Int64("ticks_read", d.TicksRead),
		zap.Int64("corrupt_records", d.CorruptRecords),
		zap.Int64("kept", d.Kept),
		zap.Int64("rejected", d.TotalRejected()),
		zap.Int64("unresolved", d.Unresolved),
		zap.Int64("off_contract", d.OffContract),
		zap.Strings("contracts", d.ContractsResolved),
	}
	for _, reason := range sortedKeys(d.RejectedByReason) {
		fields = append(fields, zap.Int64("rejected_"+reason, d.RejectedByReason[reason]))
	}
	if d.HighRejectRate {
		logger.Warn("run completed with high reject rate", fields...)
		return
	}
	logger.Info("run completed", fields...)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
