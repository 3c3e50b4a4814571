package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mdwindow/internal/domain"
)

const (
	minDayKey = "00000000"
	maxDayKey = "99999999"
)

// DiscoverQuery selects day files under the data root.
type DiscoverQuery struct {
	Product domain.ProductType
	Dataset domain.Dataset
	Start   string // yyyyMMdd, inclusive; empty means unbounded
	End     string // yyyyMMdd, inclusive; empty means unbounded
	Symbol  string // file stem filter; ignored for day bars
}

// DatasetDir returns <root>/<product>/<dataset>.
func DatasetDir(root string, product domain.ProductType, dataset domain.Dataset) string {
	return filepath.Join(root, string(product), string(dataset))
}

// Discover walks <root>/<product>/<dataset> for *.csv files and returns those
// whose parent directory (the trading day, yyyyMMdd) lies within the query
// range, sorted ascending by day. Files placed directly in the dataset
// directory are always included. A missing dataset directory yields no files.
func Discover(root string, q DiscoverQuery) ([]string, error) {
	dir := DatasetDir(root, q.Product, q.Dataset)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	start, end := q.Start, q.End
	if start == "" {
		start = minDayKey
	}
	if end == "" {
		end = maxDayKey
	}
	all := start == minDayKey && end == maxDayKey
	matchSymbol := q.Symbol != "" && q.Dataset != domain.DatasetDay
	dirName := filepath.Base(dir)

	type entry struct {
		day  string
		path string
	}
	var found []entry

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: skip it, keep walking.
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}

		if matchSymbol {
			stem := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
			if stem != q.Symbol {
				return nil
			}
		}

		day := filepath.Base(filepath.Dir(path))
		switch {
		case day == dirName:
			found = append(found, entry{day: "", path: path})
		case len(day) != 8:
		case all || (start <= day && day <= end):
			found = append(found, entry{day: day, path: path})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].day != found[j].day {
			return found[i].day < found[j].day
		}
		return found[i].path < found[j].path
	})

	paths := make([]string, len(found))
	for i, e := range found {
		paths[i] = e.path
	}
	return paths, nil
}

// symbolDatasets are the per-symbol datasets, in the order LatestSymbols
// consults them.
var symbolDatasets = []domain.Dataset{domain.DatasetMinute, domain.DatasetMinute15, domain.DatasetTick}

// LatestSymbols returns the sorted file stems of the most recent trading day
// stored for product, taken from the first per-symbol dataset holding any
// day files. It returns no symbols when nothing is stored.
func LatestSymbols(root string, product domain.ProductType) ([]string, error) {
	for _, ds := range symbolDatasets {
		files, err := Discover(root, DiscoverQuery{Product: product, Dataset: ds})
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			continue
		}

		latest := filepath.Dir(files[len(files)-1])
		seen := make(map[string]bool)
		var symbols []string
		for i := len(files) - 1; i >= 0 && filepath.Dir(files[i]) == latest; i-- {
			name := filepath.Base(files[i])
			stem := strings.TrimSuffix(name, filepath.Ext(name))
			if !seen[stem] {
				seen[stem] = true
				symbols = append(symbols, stem)
			}
		}
		sort.Strings(symbols)
		return symbols, nil
	}
	return nil, nil
}
