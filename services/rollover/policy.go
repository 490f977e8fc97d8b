package rollover

import (
	"sync"
	"time"

	"tickbars/services/tick"
)

// DefaultCutoverDays reflects the usual practice of rolling about two
// weeks before expiration.
const DefaultCutoverDays = 14

// Policy decides when front-contract status passes from a contract to its
// successor. Exactly one rule is active per run; it is configuration, not
// an emergent property of file ordering.
type Policy interface {
	Name() string
	// RolledOver reports whether ts belongs to next rather than front.
	RolledOver(front, next Contract, ts time.Time) bool
}

// VolumeObserver is implemented by policies that need traded volume.
type VolumeObserver interface {
	ObserveVolume(code tick.ContractCode, ts int64, size int64)
}

// DaysBeforeExpiry cuts over at a fixed instant: expiry minus N calendar
// days. Pure in ts, safe for concurrent use.
type DaysBeforeExpiry struct {
	Days int
}

func (p DaysBeforeExpiry) Name() string { return "days-before-expiry" }

func (p DaysBeforeExpiry) RolledOver(front, _ Contract, ts time.Time) bool {
	days := p.Days
	if days <= 0 {
		days = DefaultCutoverDays
	}
	return !ts.Before(front.Expiry.AddDate(0, 0, -days))
}

// Cutover returns the instant at which the front contract hands over.
func (p DaysBeforeExpiry) Cutover(front Contract) time.Time {
	days := p.Days
	if days <= 0 {
		days = DefaultCutoverDays
	}
	return front.Expiry.AddDate(0, 0, -days)
}

// VolumeCrossover hands over on the first day after the successor's
// completed-day volume exceeds the front's. Volume arrives via
// ObserveVolume, keyed by UTC day; observation and resolution may run on
// different goroutines, hence the lock.
type VolumeCrossover struct {
	mu       sync.Mutex
	daily    map[volKey]int64
	decided  map[int]time.Time // front generation -> cutover day (start of day, UTC)
	lastDay  map[int]int64     // generation -> latest completed day observed
	fallback DaysBeforeExpiry  // guards against contracts with no volume data
}

type volKey struct {
	gen int
	day int64 // UTC day number
}

func NewVolumeCrossover() *VolumeCrossover {
	return &VolumeCrossover{
		daily:    make(map[volKey]int64),
		decided:  make(map[int]time.Time),
		lastDay:  make(map[int]int64),
		fallback: DaysBeforeExpiry{Days: DefaultCutoverDays},
	}
}

func (p *VolumeCrossover) Name() string { return "volume-crossover" }

func (p *VolumeCrossover) ObserveVolume(code tick.ContractCode, ts int64, size int64) {
	day := ts / int64(24*time.Hour)
	gen := code.Generation()
	p.mu.Lock()
	p.daily[volKey{gen, day}] += size
	if day > p.lastDay[gen] {
		p.lastDay[gen] = day
	}
	p.mu.Unlock()
}

func (p *VolumeCrossover) RolledOver(front, next Contract, ts time.Time) bool {
	fg, ng := front.Code.Generation(), next.Code.Generation()
	p.mu.Lock()
	defer p.mu.Unlock()
	if cut, ok := p.decided[fg]; ok {
		return !ts.Before(cut)
	}
	// Compare the most recent completed day before ts.
	day := ts.UnixNano()/int64(24*time.Hour) - 1
	if p.daily[volKey{ng, day}] > p.daily[volKey{fg, day}] && p.daily[volKey{ng, day}] > 0 {
		cut := time.Unix(0, (day+1)*int64(24*time.Hour)).UTC()
		p.decided[fg] = cut
		return !ts.Before(cut)
	}
	// Without a crossover signal fall back to the calendar rule so a quiet
	// successor can never pin the series past expiry.
	return p.fallback.RolledOver(front, next, ts)
}
