// Package domain defines the value types shared by the file store, the
// windowing engine, and the transports.
package domain

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Datasets and product types
// ---------------------------------------------------------------------------

// Dataset identifies the bar period of a day-partitioned file tree.
type Dataset string

const (
	DatasetDay      Dataset = "1d"
	DatasetMinute   Dataset = "1m"
	DatasetMinute15 Dataset = "15m"
	DatasetTick     Dataset = "tick"
)

// Datasets lists every dataset provisioned under a product folder.
var Datasets = []Dataset{DatasetDay, DatasetMinute, DatasetMinute15, DatasetTick}

// ParseDataset maps a dataset name (case-insensitive) to a Dataset.
func ParseDataset(s string) (Dataset, error) {
	d := Dataset(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Datasets {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dataset %q", s)
}

// IsMinute reports whether d holds intraday bars (1m or 15m).
func (d Dataset) IsMinute() bool {
	return d == DatasetMinute || d == DatasetMinute15
}

// ProductType is the numeric product-family code used as the top-level
// folder name under the data root.
type ProductType string

const (
	ProductAShare   ProductType = "11"
	ProductFund     ProductType = "12"
	ProductFutures  ProductType = "14"
	ProductIndex    ProductType = "16"
	ProductUSEquity ProductType = "21"
	ProductUSOption ProductType = "22"
	ProductCrypto   ProductType = "31"
)

// ProductTypes lists every product family provisioned at startup.
var ProductTypes = []ProductType{
	ProductAShare,
	ProductFutures,
	ProductFund,
	ProductIndex,
	ProductUSEquity,
	ProductUSOption,
	ProductCrypto,
}

// Label returns a human-readable product family name.
func (p ProductType) Label() string {
	switch p {
	case ProductAShare:
		return "a-share"
	case ProductFund:
		return "fund"
	case ProductFutures:
		return "futures"
	case ProductIndex:
		return "index"
	case ProductUSEquity:
		return "us-equity"
	case ProductUSOption:
		return "us-option"
	case ProductCrypto:
		return "crypto"
	}
	return "unknown"
}

// ---------------------------------------------------------------------------
// Resumption state
// ---------------------------------------------------------------------------

// Position is the resumption state a caller threads between calls: a row
// offset relative to the first of Files. A Position with no files is done.
type Position struct {
	Cursor int      `json:"cursor"`
	Files  []string `json:"files"`
}

// Start returns the Position for the first call over files.
func Start(files []string) Position {
	return Position{Cursor: 0, Files: files}
}

// Done reports whether there is nothing left to scan.
func (p Position) Done() bool { return len(p.Files) == 0 }

// Window is the result of one pager call.
type Window struct {
	Data           string   `json:"data"`
	Rows           int      `json:"rows"`
	NextCursor     int      `json:"nextCursor"`
	RemainingFiles []string `json:"remainingFiles"`
}

// Next returns the Position for the following call.
func (w Window) Next() Position {
	return Position{Cursor: w.NextCursor, Files: w.RemainingFiles}
}

// FilterResult is the result of one time-range filter call. It carries no
// cursor: a file is either fully consumed or re-offered untouched.
type FilterResult struct {
	Data           string   `json:"data"`
	Rows           int      `json:"rows"`
	RemainingFiles []string `json:"remainingFiles"`
}

// JoinRows joins rows with newlines, adding a trailing newline iff rows is
// non-empty.
func JoinRows(rows []string) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, r := range rows {
		n += len(r) + 1
	}
	b.Grow(n)
	for _, r := range rows {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	return b.String()
}
