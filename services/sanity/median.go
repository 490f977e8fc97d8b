package sanity

import (
	"container/heap"

	"github.com/shopspring/decimal"
)

// rollingMedian maintains the median of the last window accepted prices in
// O(log n) per update: two balanced heaps plus lazy deletion of items that
// slid out of the window. No full-data sort ever happens, so the filter
// stays streaming/batch-compatible.
type rollingMedian struct {
	window int
	seq    int64
	queue  []int64 // insertion order, oldest first
	low    *priceHeap
	high   *priceHeap
	dead   map[int64]struct{}
	inLow  map[int64]bool // which heap each live item currently sits in
	// live counts, excluding lazily-deleted items
	lowN, highN int
}

type priceItem struct {
	seq   int64
	price decimal.Decimal
}

type priceHeap struct {
	items []priceItem
	max   bool // max-heap when true
}

func (h *priceHeap) Len() int { return len(h.items) }
func (h *priceHeap) Less(i, j int) bool {
	c := h.items[i].price.Cmp(h.items[j].price)
	if h.max {
		return c > 0
	}
	return c < 0
}
func (h *priceHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *priceHeap) Push(x any)    { h.items = append(h.items, x.(priceItem)) }
func (h *priceHeap) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items = h.items[:n-1]
	return it
}

func newRollingMedian(window int) *rollingMedian {
	if window <= 0 {
		window = DefaultMedianWindow
	}
	return &rollingMedian{
		window: window,
		low:    &priceHeap{max: true},
		high:   &priceHeap{max: false},
		dead:   make(map[int64]struct{}),
		inLow:  make(map[int64]bool),
	}
}

func (m *rollingMedian) Count() int { return m.lowN + m.highN }

// Add folds one accepted price into the window.
func (m *rollingMedian) Add(p decimal.Decimal) {
	id := m.seq
	m.seq++
	m.queue = append(m.queue, id)

	m.pruneLow()
	if m.lowN == 0 || p.Cmp(m.low.items[0].price) <= 0 {
		heap.Push(m.low, priceItem{id, p})
		m.inLow[id] = true
		m.lowN++
	} else {
		heap.Push(m.high, priceItem{id, p})
		m.inLow[id] = false
		m.highN++
	}

	if len(m.queue) > m.window {
		oldest := m.queue[0]
		m.queue = m.queue[1:]
		m.dead[oldest] = struct{}{}
		if m.inLow[oldest] {
			m.lowN--
		} else {
			m.highN--
		}
		delete(m.inLow, oldest)
	}
	m.rebalance()
}

// Median of the current window. Even windows average the two middles.
func (m *rollingMedian) Median() (decimal.Decimal, bool) {
	if m.Count() == 0 {
		return decimal.Decimal{}, false
	}
	m.pruneLow()
	m.pruneHigh()
	if m.lowN == m.highN {
		sum := m.low.items[0].price.Add(m.high.items[0].price)
		return sum.Div(decimal.New(2, 0)), true
	}
	return m.low.items[0].price, true
}

// Invariant after rebalance: lowN == highN or lowN == highN+1.
func (m *rollingMedian) rebalance() {
	for m.lowN > m.highN+1 {
		m.pruneLow()
		it := heap.Pop(m.low).(priceItem)
		heap.Push(m.high, it)
		m.inLow[it.seq] = false
		m.lowN--
		m.highN++
	}
	for m.highN > m.lowN {
		m.pruneHigh()
		it := heap.Pop(m.high).(priceItem)
		heap.Push(m.low, it)
		m.inLow[it.seq] = true
		m.highN--
		m.lowN++
	}
}

// pruneLow/pruneHigh pop dead items off the heap tops so the tops are live.
func (m *rollingMedian) pruneLow() {
	for m.low.Len() > 0 {
		if _, dead := m.dead[m.low.items[0].seq]; !dead {
			return
		}
		it := heap.Pop(m.low).(priceItem)
		delete(m.dead, it.seq)
	}
}

func (m *rollingMedian) pruneHigh() {
	for m.high.Len() > 0 {
		if _, dead := m.dead[m.high.items[0].seq]; !dead {
			return
		}
		it := heap.Pop(m.high).(priceItem)
		delete(m.dead, it.seq)
	}
}
