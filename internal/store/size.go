package store

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"mdwindow/internal/domain"
)

// Average on-disk bytes per row, used to estimate intraday row counts.
const (
	DefaultMinuteBytesPerRow = 120
	DefaultTickBytesPerRow   = 232
)

// Estimator estimates how many rows a set of day files holds. Day bars are
// counted exactly; intraday datasets are estimated from file sizes.
type Estimator struct {
	minuteBytesPerRow int64
	tickBytesPerRow   int64
	source            RowSource
	log               *slog.Logger
}

// NewEstimator creates an Estimator. Non-positive divisors fall back to the
// defaults.
func NewEstimator(minuteBytesPerRow, tickBytesPerRow int64, source RowSource, log *slog.Logger) *Estimator {
	if minuteBytesPerRow <= 0 {
		minuteBytesPerRow = DefaultMinuteBytesPerRow
	}
	if tickBytesPerRow <= 0 {
		tickBytesPerRow = DefaultTickBytesPerRow
	}
	return &Estimator{
		minuteBytesPerRow: minuteBytesPerRow,
		tickBytesPerRow:   tickBytesPerRow,
		source:            source,
		log:               log,
	}
}

// TotalSize sums the sizes of the regular files in paths. Files that cannot
// be stat'ed are logged and ignored.
func (e *Estimator) TotalSize(paths []string) int64 {
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			e.log.Warn("stat day file", "path", p, "error", err)
			continue
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total
}

// EstimateRows returns the row count for paths. For day bars the count is
// exact and restricted to symbol when one is given.
func (e *Estimator) EstimateRows(paths []string, ds domain.Dataset, symbol string) int {
	switch {
	case ds == domain.DatasetDay:
		return e.countDayRows(paths, symbol)
	case ds.IsMinute():
		return int(e.TotalSize(paths) / e.minuteBytesPerRow)
	case ds == domain.DatasetTick:
		return int(e.TotalSize(paths) / e.tickBytesPerRow)
	}
	return 0
}

func (e *Estimator) countDayRows(paths []string, symbol string) int {
	n := 0
	for _, p := range paths {
		if symbol == "" {
			c, err := e.countRows(p)
			if err != nil {
				e.log.Warn("skipping unreadable day file", "path", p, "error", err)
				continue
			}
			n += c
			continue
		}

		header, err := e.source.ReadHeader(p)
		if err != nil {
			e.log.Warn("skipping unreadable day file", "path", p, "error", err)
			continue
		}
		idx := header.Index(ColumnSymbol)
		if idx < 0 {
			e.log.Warn("day file has no symbol column", "path", p)
			continue
		}
		rows, err := e.source.ReadRows(p)
		if err != nil {
			e.log.Warn("skipping unreadable day file", "path", p, "error", err)
			continue
		}
		for _, row := range rows {
			fields := SplitFields(row)
			if idx < len(fields) && fields[idx] == symbol {
				n++
			}
		}
	}
	return n
}

func (e *Estimator) countRows(path string) (int, error) {
	if c, ok := e.source.(RowCounter); ok {
		return c.CountRows(path)
	}
	rows, err := e.source.ReadRows(path)
	return len(rows), err
}

// DirSize returns the total size of the regular files below dir.
// Unreadable entries are ignored.
func DirSize(dir string) (int64, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	err = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil && fi.Mode().IsRegular() {
			total += fi.Size()
		}
		return nil
	})
	return total, err
}

// FormatSize renders a byte count for humans, e.g. "1.2 MiB".
func FormatSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}
