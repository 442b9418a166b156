package csvfile

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/christophzehentbauerz/trade/internal/collector"
	"github.com/christophzehentbauerz/trade/internal/core"
	"golang.org/x/text/encoding/unicode"
)

var (
	_ collector.Provider = (*Store)(nil)
	_ collector.Sink     = (*Store)(nil)
)

const research = `timestamp,Open,High,Low,Close,Volume
2022-01-01 00:00:00,46216.93,46731.39,46208.37,46656.13,1503.33
2022-01-01 01:00:00,46656.14,46949.99,46574.06,46778.14,943.81
2022-01-01 02:00:00,46778.14,46928.94,46721.96,46811.77,485.16
`

func TestReadBars_ResearchLayout(t *testing.T) {
	bars, err := ReadBars(strings.NewReader(research))
	if err != nil {
		t.Fatalf("ReadBars failed: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	want := core.Bar{
		Time:   time.Date(2022, 1, 1, 1, 0, 0, 0, time.UTC),
		Open:   46656.14,
		High:   46949.99,
		Low:    46574.06,
		Close:  46778.14,
		Volume: 943.81,
	}
	if bars[1] != want {
		t.Errorf("bar 1 = %+v, want %+v", bars[1], want)
	}
}

func TestReadBars_HeaderOrderAndCase(t *testing.T) {
	in := "close,open,TIME,low,high\n" +
		"11,10,2022-01-02T00:00:00Z,9,12\n" +
		"12,11,2022-01-01T00:00:00Z,10,13\n"

	bars, err := ReadBars(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadBars failed: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Time.Day() != 1 || bars[0].Open != 11 || bars[0].Close != 12 || bars[0].High != 13 {
		t.Errorf("bars not sorted or mapped: %+v", bars[0])
	}
	if bars[0].Volume != 0 {
		t.Errorf("expected zero volume without a volume column, got %v", bars[0].Volume)
	}
}

func TestReadBars_HeaderlessEpochMillis(t *testing.T) {
	in := "1640995200000,1,2,0.5,1.5,10\n1640998800000,1.5,2,1,1.8,11\n"
	bars, err := ReadBars(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadBars failed: %v", err)
	}
	if len(bars) != 2 || !bars[0].Time.Equal(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected bars: %+v", bars)
	}
}

func TestReadBars_UTF16(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, err := enc.String(research)
	if err != nil {
		t.Fatalf("encoding failed: %v", err)
	}

	bars, err := ReadBars(strings.NewReader(encoded))
	if err != nil {
		t.Fatalf("ReadBars failed: %v", err)
	}
	if len(bars) != 3 || bars[2].Close != 46811.77 {
		t.Errorf("unexpected bars: %+v", bars)
	}
}

func TestReadBars_Errors(t *testing.T) {
	tests := map[string]string{
		"bad price":     "timestamp,Open,High,Low,Close\n2022-01-01,abc,1,1,1\n",
		"bad time":      "timestamp,Open,High,Low,Close\nyesterday,1,1,1,1\n",
		"short row":     "timestamp,Open,High,Low,Close\n2022-01-01,1,1\n",
		"duplicate bar": "2022-01-01,1,1,1,1\n2022-01-01,1,1,1,1\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadBars(strings.NewReader(in))
			if !errors.Is(err, core.ErrInvalidData) {
				t.Errorf("expected ErrInvalidData, got %v", err)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2022, 3, 4, 5, 0, 0, 0, time.UTC)
	for _, s := range []string{"2022-03-04 05:00:00", "2022-03-04T05:00:00Z", "2022-03-04T07:00:00+02:00", "1646370000", "1646370000000"} {
		got, err := ParseTime(s)
		if err != nil {
			t.Errorf("ParseTime(%q) error: %v", s, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTime(%q) = %s, want %s", s, got, want)
		}
	}
}

func TestStore_RoundTrip(t *testing.T) {
	bars, err := ReadBars(strings.NewReader(research))
	if err != nil {
		t.Fatal(err)
	}

	store := New(filepath.Join(t.TempDir(), "data", "BTC_USDT_1h.csv"))
	ctx := context.Background()
	if err := store.WriteBars(ctx, "BTCUSDT", bars); err != nil {
		t.Fatalf("WriteBars failed: %v", err)
	}

	got, err := store.FetchHistory(ctx, "BTCUSDT", time.Time{}, time.Time{}, "1h")
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
	if len(got) != len(bars) {
		t.Fatalf("expected %d bars, got %d", len(bars), len(got))
	}
	for i := range bars {
		if got[i] != bars[i] {
			t.Errorf("bar %d = %+v, want %+v", i, got[i], bars[i])
		}
	}

	ranged, err := store.FetchHistory(ctx, "BTCUSDT", bars[1].Time, time.Time{}, "1h")
	if err != nil {
		t.Fatal(err)
	}
	if len(ranged) != 2 {
		t.Errorf("expected 2 bars from bar 1 on, got %d", len(ranged))
	}
}

func TestStore_MissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "none.csv")).FetchHistory(context.Background(), "X", time.Time{}, time.Time{}, "1h")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteBars_Header(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteBars(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "timestamp,Open,High,Low,Close,Volume\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}
