// Package rollover resolves which futures contract generation owns each
// tick. Contract ranges come from the static file metadata declared up
// front, so resolution needs no cross-file coordination at run time.
package rollover

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"tickbars/services/parser"
	"tickbars/services/tick"
)

var ErrAmbiguousRollover = errors.New("ambiguous rollover")

// Contract pairs a code with its computed expiry instant.
type Contract struct {
	Code   tick.ContractCode
	Expiry time.Time
}

// Expiry places expiration on the third Friday of the contract month at
// 21:00 UTC (4pm ET close), the index-futures convention.
func Expiry(c tick.ContractCode) time.Time {
	first := time.Date(c.Year, c.Month(), 1, 0, 0, 0, 0, time.UTC)
	offset := (int(time.Friday) - int(first.Weekday()) + 7) % 7
	thirdFriday := first.AddDate(0, 0, offset+14)
	return thirdFriday.Add(21 * time.Hour)
}

// FrontContract maps a calendar month to the quarterly contract that is
// front during most of that month. December belongs to next year's H.
func FrontContract(root string, year int, month time.Month) tick.ContractCode {
	switch month {
	case time.December:
		return tick.ContractCode{Root: root, Code: 'H', Year: year + 1}
	case time.January, time.February, time.March:
		return tick.ContractCode{Root: root, Code: 'H', Year: year}
	case time.April, time.May, time.June:
		return tick.ContractCode{Root: root, Code: 'M', Year: year}
	case time.July, time.August, time.September:
		return tick.ContractCode{Root: root, Code: 'U', Year: year}
	default: // October, November
		return tick.ContractCode{Root: root, Code: 'Z', Year: year}
	}
}

// Resolution is the continuous-contract tag attached to a tick.
type Resolution struct {
	Contract   tick.ContractCode
	Generation int
	Resolved   bool
}

// Unresolved is the tag for ticks outside every declared contract range.
var Unresolved = Resolution{}

// Resolver assigns continuous-contract tags for a single root symbol.
type Resolver struct {
	root      string
	contracts []Contract // ascending generation
	policy    Policy
	spanStart int64 // union of declared file ranges, UTC ns
	spanEnd   int64
}

// New builds a resolver from the declared tick files of one root symbol.
// Duplicate (root, year, month) declarations are fatal: two files would
// claim the same timestamps under the same contract.
func New(root string, metas []parser.FileMeta, policy Policy) (*Resolver, error) {
	if len(metas) == 0 {
		return nil, fmt.Errorf("no tick files for %s", root)
	}
	if policy == nil {
		policy = DaysBeforeExpiry{Days: DefaultCutoverDays}
	}
	seen := make(map[string]string, len(metas))
	spanStart, spanEnd := int64(0), int64(0)
	gens := make(map[int]tick.ContractCode)
	for i, m := range metas {
		if m.Root != root {
			return nil, fmt.Errorf("file %s declares root %s, want %s", m.Path, m.Root, root)
		}
		key := fmt.Sprintf("%s-%d-%02d", m.Root, m.Year, m.Month)
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %s and %s both declare %s %d-%02d",
				ErrAmbiguousRollover, prev, m.Path, m.Root, m.Year, m.Month)
		}
		seen[key] = m.Path
		s, e := m.Range()
		if i == 0 || s < spanStart {
			spanStart = s
		}
		if e > spanEnd {
			spanEnd = e
		}
		// A month file can straddle a rollover, so both the month's front
		// contract and its successor are in play.
		front := FrontContract(root, m.Year, m.Month)
		gens[front.Generation()] = front
		next := front.Next()
		gens[next.Generation()] = next
	}
	contracts := make([]Contract, 0, len(gens))
	for _, code := range gens {
		contracts = append(contracts, Contract{Code: code, Expiry: Expiry(code)})
	}
	sort.Slice(contracts, func(i, j int) bool {
		return contracts[i].Code.Generation() < contracts[j].Code.Generation()
	})
	return &Resolver{
		root:      root,
		contracts: contracts,
		policy:    policy,
		spanStart: spanStart,
		spanEnd:   spanEnd,
	}, nil
}

// Contracts returns the known contracts in generation order.
func (r *Resolver) Contracts() []Contract { return r.contracts }

// Resolve tags a tick with the front contract active at its timestamp.
// Ticks outside every declared file range come back Unresolved. The result
// is non-decreasing in generation as timestamps advance, because cutover
// instants are fixed per contract pair.
func (r *Resolver) Resolve(t tick.Tick) Resolution {
	if t.Ts < r.spanStart || t.Ts >= r.spanEnd {
		return Unresolved
	}
	ts := time.Unix(0, t.Ts).UTC()
	for i, c := range r.contracts {
		if !ts.Before(c.Expiry) {
			continue // already expired
		}
		if i+1 < len(r.contracts) && r.policy.RolledOver(c, r.contracts[i+1], ts) {
			continue
		}
		return Resolution{Contract: c.Code, Generation: c.Code.Generation(), Resolved: true}
	}
	return Unresolved
}

// Observe feeds traded volume to policies that track it (volume crossover).
// Time-based policies ignore it.
func (r *Resolver) Observe(code tick.ContractCode, ts int64, size int64) {
	if o, ok := r.policy.(VolumeObserver); ok {
		o.ObserveVolume(code, ts, size)
	}
}
