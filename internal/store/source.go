package store

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// maxLineSize bounds a single CSV line.
const maxLineSize = 4 << 20

// Compile-time interface check.
var _ RowSource = (*CSVSource)(nil)

// CSVSource implements RowSource over comma-delimited text files whose first
// line is a header. No file handle outlives a call.
type CSVSource struct{}

// NewCSVSource creates a CSVSource.
func NewCSVSource() *CSVSource {
	return &CSVSource{}
}

// ReadHeader reads only the first line of path.
func (s *CSVSource) ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, &FileReadError{Path: path, Err: err}
	}
	return ParseHeader(line), nil
}

// ReadRows returns the data rows of path. The header line is always skipped;
// blank lines are not rows.
func (s *CSVSource) ReadRows(path string) ([]string, error) {
	var rows []string
	err := scanRows(path, func(row string) {
		rows = append(rows, row)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CountRows counts the data rows of path without keeping them.
func (s *CSVSource) CountRows(path string) (int, error) {
	return CountRows(path)
}

// ReadRows reads the data rows of path with a CSVSource.
func ReadRows(path string) ([]string, error) {
	return NewCSVSource().ReadRows(path)
}

// CountRows counts the data rows of path without keeping them.
func CountRows(path string) (int, error) {
	n := 0
	err := scanRows(path, func(string) { n++ })
	return n, err
}

func scanRows(path string, fn func(row string)) error {
	f, err := os.Open(path)
	if err != nil {
		return &FileReadError{Path: path, Err: err}
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fn(line)
	}
	if err := sc.Err(); err != nil {
		return &FileReadError{Path: path, Err: err}
	}
	return nil
}
