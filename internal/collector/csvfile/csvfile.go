// Package csvfile reads and writes bar series as CSV in the
// timestamp,Open,High,Low,Close,Volume layout of the research downloads.
package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/christophzehentbauerz/trade/internal/collector"
	"github.com/christophzehentbauerz/trade/internal/core"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TimeLayout is the timestamp layout written to bar files
const TimeLayout = "2006-01-02 15:04:05"

var header = []string{"timestamp", "Open", "High", "Low", "Close", "Volume"}

var timeLayouts = []string{
	TimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Store is a single CSV bar file. It serves one symbol, so FetchHistory
// ignores the symbol and interval it is asked for.
type Store struct {
	path string
}

// New creates a store for path
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Name() string {
	return "csv"
}

// FetchHistory loads the file and returns the bars inside [start, end]
func (s *Store) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.path, err)
	}
	defer f.Close()

	bars, err := ReadBars(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	return collector.FilterRange(bars, start, end), nil
}

// WriteBars replaces the file with bars
func (s *Store) WriteBars(ctx context.Context, symbol string, bars []core.Bar) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directories: %w", err)
		}
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", s.path, err)
	}
	if err := WriteBars(f, bars); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// decode wraps r with a UTF-16 decoder when it starts with a UTF-16 BOM.
// Spreadsheet exports on Windows are often UTF-16.
func decode(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, _ := br.Peek(2); len(b) == 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	}
	return br
}

type columns struct {
	time, open, high, low, close, volume int
}

var positional = columns{0, 1, 2, 3, 4, 5}

// headerColumns maps a header row to column positions. Names are matched
// case-insensitively; volume is optional.
func headerColumns(rec []string) (columns, bool) {
	c := columns{-1, -1, -1, -1, -1, -1}
	for i, name := range rec {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "timestamp", "time", "date", "datetime", "open_time", "timestamp_ms":
			c.time = i
		case "open":
			c.open = i
		case "high":
			c.high = i
		case "low":
			c.low = i
		case "close":
			c.close = i
		case "volume":
			c.volume = i
		}
	}
	ok := c.time >= 0 && c.open >= 0 && c.high >= 0 && c.low >= 0 && c.close >= 0
	return c, ok
}

// ReadBars parses CSV bars, sorted by time. A header row is optional;
// without one the columns are taken in timestamp,Open,High,Low,Close,Volume
// order.
func ReadBars(r io.Reader) ([]core.Bar, error) {
	cr := csv.NewReader(decode(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	cols := positional
	var bars []core.Bar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidData, fmt.Errorf("line %d: %w", line, err))
		}
		if line == 1 {
			if c, ok := headerColumns(rec); ok {
				cols = c
				continue
			}
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		bar, err := parseRecord(rec, cols)
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidData, fmt.Errorf("line %d: %w", line, err))
		}
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	for i := 1; i < len(bars); i++ {
		if bars[i].Time.Equal(bars[i-1].Time) {
			return nil, core.WrapError(core.ErrInvalidData, fmt.Errorf("duplicate timestamp %s", bars[i].Time.Format(TimeLayout)))
		}
	}
	return bars, nil
}

func parseRecord(rec []string, c columns) (core.Bar, error) {
	field := func(i int) (string, error) {
		if i >= len(rec) {
			return "", fmt.Errorf("expected at least %d fields, got %d", i+1, len(rec))
		}
		return strings.TrimSpace(strings.Trim(rec[i], `"`)), nil
	}
	num := func(i int) (float64, error) {
		s, err := field(i)
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(s, 64)
	}

	ts, err := field(c.time)
	if err != nil {
		return core.Bar{}, err
	}
	t, err := ParseTime(ts)
	if err != nil {
		return core.Bar{}, err
	}

	bar := core.Bar{Time: t}
	for _, f := range []struct {
		col int
		dst *float64
	}{
		{c.open, &bar.Open},
		{c.high, &bar.High},
		{c.low, &bar.Low},
		{c.close, &bar.Close},
	} {
		if *f.dst, err = num(f.col); err != nil {
			return core.Bar{}, err
		}
	}
	if c.volume >= 0 && c.volume < len(rec) {
		if bar.Volume, err = num(c.volume); err != nil {
			return core.Bar{}, err
		}
	}
	return bar, nil
}

// ParseTime accepts the layouts of the research files, epoch milliseconds
// and epoch seconds. Times without a zone are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "\ufeff")
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// WriteBars writes bars with a header row
func WriteBars(w io.Writer, bars []core.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Time.UTC().Format(TimeLayout),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
