package tick

import (
	"testing"
	"time"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("5m")
	if err != nil {
		t.Fatal(err)
	}
	if tf.Dur != 5*time.Minute || tf.Name != "5m" {
		t.Fatalf("got %+v", tf)
	}

	custom, err := ParseTimeframe("90s")
	if err != nil {
		t.Fatal(err)
	}
	if custom.Dur != 90*time.Second {
		t.Fatalf("got %+v", custom)
	}

	if _, err := ParseTimeframe("banana"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := ParseTimeframe("-5m"); err == nil {
		t.Fatal("negative duration must be rejected")
	}
}

func TestTimeframesList(t *testing.T) {
	tfs, err := Timeframes("1m, 5m,1h")
	if err != nil {
		t.Fatal(err)
	}
	if len(tfs) != 3 || tfs[2].Name != "1h" {
		t.Fatalf("got %+v", tfs)
	}
	if _, err := Timeframes(""); err == nil {
		t.Fatal("empty list must error")
	}
}

func TestBucketStartEpochAligned(t *testing.T) {
	tf := Timeframe{"1m", time.Minute}
	min := int64(time.Minute)

	if got := tf.BucketStart(90 * int64(time.Second)); got != min {
		t.Fatalf("90s -> %d, want %d", got, min)
	}
	// A timestamp exactly on the boundary starts that bucket.
	if got := tf.BucketStart(min); got != min {
		t.Fatalf("boundary -> %d, want %d", got, min)
	}
	// Pre-epoch timestamps still floor downward.
	if got := tf.BucketStart(-30 * int64(time.Second)); got != -min {
		t.Fatalf("-30s -> %d, want %d", got, -min)
	}
}
