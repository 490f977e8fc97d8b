// Package parser reads raw tick CSV files in bounded batches and emits
// normalized Ticks. Files follow the vendor convention SYMBOL_YYYY_MM.csv
// (also SYMBOL-YYYY-MM.csv and SYMBOL_YYYYMM.csv): one root symbol, one
// calendar month of ticks per file.
package parser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"tickbars/services/normalize"
	"tickbars/services/tick"
)

var (
	ErrMalformedFilename = errors.New("malformed filename")
	ErrUnparseableHeader = errors.New("unparseable header")
)

var fileNameRe = regexp.MustCompile(`^([A-Z]+)[-_](20\d{2})[-_]?(\d{2})\.csv$`)

// FileMeta is what the filename declares about a tick file.
type FileMeta struct {
	Path  string
	Root  string     // root symbol, e.g. NQ
	Year  int        // calendar year of the data
	Month time.Month // calendar month of the data
}

// Range returns the UTC nanosecond span [start, end) of the declared month.
func (m FileMeta) Range() (int64, int64) {
	start := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
	return start.UnixNano(), start.AddDate(0, 1, 0).UnixNano()
}

// ParseFilename validates the naming convention against the base name.
func ParseFilename(path string) (FileMeta, error) {
	base := filepath.Base(path)
	m := fileNameRe.FindStringSubmatch(base)
	if m == nil {
		return FileMeta{}, fmt.Errorf("%w: %q (want SYMBOL_YYYY_MM.csv)", ErrMalformedFilename, base)
	}
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 {
		return FileMeta{}, fmt.Errorf("%w: %q: month %02d out of range", ErrMalformedFilename, base, month)
	}
	return FileMeta{Path: path, Root: m[1], Year: year, Month: time.Month(month)}, nil
}

// Reader streams one tick file in batches. It is restartable: Open may be
// called again after Close to re-read from the beginning.
type Reader struct {
	meta      FileMeta
	norm      *normalize.Normalizer
	batchSize int

	f    *os.File
	csv  *csv.Reader
	cols columns

	corrupt int64
	rows    int64
}

type columns struct {
	ts       int
	price    int
	size     int
	contract int // -1 when the file carries no per-row symbol
}

// DefaultBatchSize matches the original ingest cadence of 200k rows.
const DefaultBatchSize = 200_000

func NewReader(path string, norm *normalize.Normalizer, batchSize int) (*Reader, error) {
	meta, err := ParseFilename(path)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Reader{meta: meta, norm: norm, batchSize: batchSize}, nil
}

func (r *Reader) Meta() FileMeta { return r.meta }

// CorruptRecords reports rows skipped so far in the current pass.
func (r *Reader) CorruptRecords() int64 { return r.corrupt }

// RowsRead reports data rows consumed so far, including corrupt ones.
func (r *Reader) RowsRead() int64 { return r.rows }

// Open (re)opens the file, transcodes a UTF-16 BOM if present and locates
// the required columns in the header row.
func (r *Reader) Open() error {
	f, err := os.Open(r.meta.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", r.meta.Path, err)
	}
	br := bufio.NewReaderSize(f, 1<<20)
	if b, _ := br.Peek(2); len(b) >= 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return fmt.Errorf("seek %s: %w", r.meta.Path, err)
		}
		tr := transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
		br = bufio.NewReaderSize(tr, 1<<20)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %v", ErrUnparseableHeader, r.meta.Path, err)
	}
	cols, err := locateColumns(header)
	if err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", r.meta.Path, err)
	}

	r.f = f
	r.csv = cr
	r.cols = cols
	r.corrupt = 0
	r.rows = 0
	return nil
}

func locateColumns(header []string) (columns, error) {
	cols := columns{ts: -1, price: -1, size: -1, contract: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "timestamp", "ts_event", "time":
			if cols.ts < 0 {
				cols.ts = i
			}
		case "price":
			cols.price = i
		case "size", "quantity", "qty":
			if cols.size < 0 {
				cols.size = i
			}
		case "symbol", "contract":
			cols.contract = i
		}
	}
	if cols.ts < 0 || cols.price < 0 || cols.size < 0 {
		return cols, fmt.Errorf("%w: need timestamp, price, size; got %v", ErrUnparseableHeader, header)
	}
	return cols, nil
}

// NextBatch returns up to batchSize parsed ticks. Rows with unparsable
// timestamp, price or size are counted as corrupt and skipped, never fatal.
// Returns io.EOF (possibly with a final short batch) when the file ends.
func (r *Reader) NextBatch() ([]tick.Tick, error) {
	if r.csv == nil {
		return nil, fmt.Errorf("reader not open: %s", r.meta.Path)
	}
	batch := make([]tick.Tick, 0, r.batchSize)
	for len(batch) < r.batchSize {
		rec, err := r.csv.Read()
		if err == io.EOF {
			return batch, io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				// not row-scoped: an underlying read failure would
				// otherwise loop here forever
				return batch, fmt.Errorf("read %s: %w", r.meta.Path, err)
			}
			// csv-level damage on a single row
			r.rows++
			r.corrupt++
			continue
		}
		r.rows++
		t, ok := r.parseRecord(rec)
		if !ok {
			r.corrupt++
			continue
		}
		batch = append(batch, t)
	}
	return batch, nil
}

func (r *Reader) parseRecord(rec []string) (tick.Tick, bool) {
	need := r.cols.ts
	if r.cols.price > need {
		need = r.cols.price
	}
	if r.cols.size > need {
		need = r.cols.size
	}
	if len(rec) <= need {
		return tick.Tick{}, false
	}
	ts, err := r.norm.Timestamp(strings.TrimPrefix(rec[r.cols.ts], "\ufeff"))
	if err != nil {
		return tick.Tick{}, false
	}
	price, err := r.norm.Price(rec[r.cols.price])
	if err != nil {
		return tick.Tick{}, false
	}
	size, err := r.norm.Size(rec[r.cols.size])
	if err != nil {
		return tick.Tick{}, false
	}
	t := tick.Tick{Ts: ts, Price: price, Size: size, Source: filepath.Base(r.meta.Path)}
	if r.cols.contract >= 0 && r.cols.contract < len(rec) {
		if code, err := tick.ParseContractCode(strings.TrimSpace(rec[r.cols.contract]), r.meta.Year); err == nil {
			t.Contract = code
		}
	}
	return t, true
}

func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	r.csv = nil
	return err
}
