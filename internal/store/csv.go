package store

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"mdwindow/internal/domain"
)

// Day-file headers. bob and eob are adjacent.
var (
	BarHeader   = []string{"symbol", "open", "high", "low", "close", "volume", "trade_count", "vwap", "bob", "eob"}
	TradeHeader = []string{"symbol", "price", "size", "exchange", "id", "created_at"}
)

// EncodeBars writes a header line and one row per record. eob is bob plus
// the dataset's bar period; day bars carry eob = bob.
func EncodeBars(w io.Writer, ds domain.Dataset, recs []BarRecord) error {
	period, err := barPeriod(ds)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(BarHeader); err != nil {
		return err
	}
	for _, r := range recs {
		bob := time.UnixMilli(r.Timestamp)
		eob := bob.Add(period)
		if ds == domain.DatasetDay {
			eob = bob
		}
		if err := cw.Write([]string{
			r.Symbol,
			formatFloat(r.Open),
			formatFloat(r.High),
			formatFloat(r.Low),
			formatFloat(r.Close),
			strconv.FormatInt(r.Volume, 10),
			strconv.FormatInt(r.TradeCount, 10),
			formatFloat(r.VWAP),
			FormatStamp(bob),
			FormatStamp(eob),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeTrades writes a header line and one row per trade. Fields holding
// commas (multi-venue exchange codes) are double-quoted.
func EncodeTrades(w io.Writer, recs []TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TradeHeader); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write([]string{
			r.Symbol,
			formatFloat(r.Price),
			strconv.FormatInt(r.Size, 10),
			r.Exchange,
			r.ID,
			FormatStamp(time.UnixMilli(r.Timestamp)),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatStamp renders a UTC timestamp with an explicit +00:00 suffix, the
// form the windowing engine strips before parsing.
func FormatStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05") + "+00:00"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func writeCSVFile(path string, encode func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
