package store

import "strings"

// Well-known header columns.
const (
	ColumnBob       = "bob"
	ColumnSymbol    = "symbol"
	ColumnCreatedAt = "created_at"
)

// Header is the tokenized, trimmed first line of a day file.
type Header []string

// ParseHeader tokenizes a header line. A leading byte-order mark and the line
// terminator are removed.
func ParseHeader(line string) Header {
	line = strings.TrimPrefix(line, "\ufeff")
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Header{}
	}
	fields := SplitFields(line)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return Header(fields)
}

// Index returns the zero-based position of name (case-insensitive), or -1.
func (h Header) Index(name string) int {
	for i, f := range h {
		if strings.EqualFold(f, name) {
			return i
		}
	}
	return -1
}

// ColumnIndex returns the index of name in the header of path, or -1 when the
// column is absent or the file cannot be read.
func ColumnIndex(path, name string) int {
	h, err := NewCSVSource().ReadHeader(path)
	if err != nil {
		return -1
	}
	return h.Index(name)
}

// BobIndex returns the index of the begin-of-bar column in path.
func BobIndex(path string) int { return ColumnIndex(path, ColumnBob) }

// SymbolIndex returns the index of the symbol column in path.
func SymbolIndex(path string) int { return ColumnIndex(path, ColumnSymbol) }

// CreatedAtIndex returns the index of the tick creation-time column in path.
func CreatedAtIndex(path string) int { return ColumnIndex(path, ColumnCreatedAt) }
