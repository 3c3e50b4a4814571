package store

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"mdwindow/internal/domain"
)

// ---------------------------------------------------------------------------
// Parquet record types (archive schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema of a bar archive.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, bar open
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// TradeRecord is the Parquet schema of a trade (tick) archive.
type TradeRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Price     float64 `parquet:"price"`
	Size      int64   `parquet:"size"`
	Exchange  string  `parquet:"exchange"`
	ID        string  `parquet:"id"`
}

// ---------------------------------------------------------------------------
// Importer
// ---------------------------------------------------------------------------

// ParquetImporter converts Parquet archives into the CSV day-file layout:
//
//	<Root>/<product>/<dataset>/<yyyyMM>/<yyyyMMdd>/<name>.csv
//
// Day bars produce one file per day holding every symbol (name = yyyyMMdd);
// minute bars and trades produce one file per symbol per day.
type ParquetImporter struct {
	Root string
	Loc  *time.Location
	log  *slog.Logger
}

// NewParquetImporter creates an importer rooted at the given data directory.
// Day boundaries are computed in loc (UTC when nil).
func NewParquetImporter(root string, loc *time.Location, log *slog.Logger) *ParquetImporter {
	if loc == nil {
		loc = time.UTC
	}
	return &ParquetImporter{Root: root, Loc: loc, log: log}
}

// ImportBars converts a bar archive into day files for the given product and
// dataset (1d, 1m or 15m). It returns the written file paths.
func (im *ParquetImporter) ImportBars(src string, product domain.ProductType, ds domain.Dataset) ([]string, error) {
	if _, err := barPeriod(ds); err != nil {
		return nil, err
	}
	records, err := readParquetFile[BarRecord](src)
	if err != nil {
		return nil, fmt.Errorf("reading bar archive %s: %w", src, err)
	}

	groups := make(map[string][]BarRecord)
	for _, r := range records {
		k := im.fileKey(r.Timestamp, r.Symbol, ds)
		groups[k] = append(groups[k], r)
	}

	var written []string
	for _, k := range sortedKeys(groups) {
		recs := groups[k]
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp < recs[j].Timestamp })

		path := im.dayFilePath(product, ds, k)
		if err := writeCSVFile(path, func(w io.Writer) error { return EncodeBars(w, ds, recs) }); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}

	im.log.Info("imported bar archive", "src", src, "records", len(records), "files", len(written))
	return written, nil
}

// ImportTrades converts a trade archive into per-symbol tick day files.
func (im *ParquetImporter) ImportTrades(src string, product domain.ProductType) ([]string, error) {
	records, err := readParquetFile[TradeRecord](src)
	if err != nil {
		return nil, fmt.Errorf("reading trade archive %s: %w", src, err)
	}

	groups := make(map[string][]TradeRecord)
	for _, r := range records {
		k := im.fileKey(r.Timestamp, r.Symbol, domain.DatasetTick)
		groups[k] = append(groups[k], r)
	}

	var written []string
	for _, k := range sortedKeys(groups) {
		recs := groups[k]
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp < recs[j].Timestamp })

		path := im.dayFilePath(product, domain.DatasetTick, k)
		if err := writeCSVFile(path, func(w io.Writer) error { return EncodeTrades(w, recs) }); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}

	im.log.Info("imported trade archive", "src", src, "records", len(records), "files", len(written))
	return written, nil
}

// fileKey returns "<yyyyMMdd>/<name>" for a record.
func (im *ParquetImporter) fileKey(ms int64, symbol string, ds domain.Dataset) string {
	day := time.UnixMilli(ms).In(im.Loc).Format("20060102")
	if ds == domain.DatasetDay {
		return day + "/" + day
	}
	return day + "/" + strings.ToUpper(symbol)
}

// dayFilePath maps a file key to <Root>/<product>/<dataset>/<yyyyMM>/<yyyyMMdd>/<name>.csv.
func (im *ParquetImporter) dayFilePath(product domain.ProductType, ds domain.Dataset, key string) string {
	day, name, _ := strings.Cut(key, "/")
	return filepath.Join(DatasetDir(im.Root, product, ds), day[:6], day, name+".csv")
}

func barPeriod(ds domain.Dataset) (time.Duration, error) {
	switch ds {
	case domain.DatasetDay:
		return 24 * time.Hour, nil
	case domain.DatasetMinute:
		return time.Minute, nil
	case domain.DatasetMinute15:
		return 15 * time.Minute, nil
	}
	return 0, fmt.Errorf("dataset %q does not hold bars", ds)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---------------------------------------------------------------------------
// File helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
