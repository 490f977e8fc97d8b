package sanity

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRollingMedianWindow(t *testing.T) {
	m := newRollingMedian(3)
	steps := []struct {
		add  string
		want string
	}{
		{"1", "1"},
		{"2", "1.5"},
		{"3", "2"},
		{"4", "3"}, // window is now 2,3,4
		{"5", "4"}, // window is now 3,4,5
	}
	for _, s := range steps {
		m.Add(d(s.add))
		got, ok := m.Median()
		if !ok {
			t.Fatalf("no median after adding %s", s.add)
		}
		if !got.Equal(d(s.want)) {
			t.Fatalf("after %s: median = %s, want %s", s.add, got, s.want)
		}
	}
}

func TestRollingMedianUnsorted(t *testing.T) {
	m := newRollingMedian(5)
	for _, v := range []string{"10", "2", "8", "4", "6"} {
		m.Add(d(v))
	}
	got, _ := m.Median()
	if !got.Equal(d("6")) {
		t.Fatalf("median = %s, want 6", got)
	}
	// Slide the window: drop 10, add 100 -> {2,8,4,6,100}.
	m.Add(d("100"))
	got, _ = m.Median()
	if !got.Equal(d("6")) {
		t.Fatalf("median = %s, want 6", got)
	}
}

func TestRollingMedianEmpty(t *testing.T) {
	m := newRollingMedian(4)
	if _, ok := m.Median(); ok {
		t.Fatal("empty window must have no median")
	}
}

func TestRollingMedianDuplicates(t *testing.T) {
	m := newRollingMedian(4)
	for i := 0; i < 4; i++ {
		m.Add(d("7"))
	}
	got, _ := m.Median()
	if !got.Equal(d("7")) {
		t.Fatalf("median = %s", got)
	}
	if m.Count() != 4 {
		t.Fatalf("count = %d", m.Count())
	}
}
