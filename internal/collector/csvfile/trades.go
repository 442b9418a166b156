package csvfile

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/christophzehentbauerz/trade/internal/broker"
)

var tradeHeader = []string{
	"EntryTime", "Type", "EntryPrice", "ExitTime", "ExitPrice",
	"Size", "PnL", "ReturnPct", "Duration", "ExitReason",
}

// WriteTrades writes a trade list with one row per closed trade
func WriteTrades(w io.Writer, trades []broker.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		rec := []string{
			t.EntryTime.UTC().Format(TimeLayout),
			t.Direction.String(),
			strconv.FormatFloat(t.EntryPrice, 'f', 2, 64),
			t.ExitTime.UTC().Format(TimeLayout),
			strconv.FormatFloat(t.ExitPrice, 'f', 2, 64),
			strconv.FormatInt(t.Size, 10),
			strconv.FormatFloat(t.PnL, 'f', 2, 64),
			strconv.FormatFloat(t.ReturnPct(), 'f', 2, 64),
			t.Duration().String(),
			string(t.ExitReason),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
