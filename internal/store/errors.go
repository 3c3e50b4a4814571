package store

import "fmt"

// FileReadError reports a day file that could not be opened or read.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// ParseError reports a data row that could not be interpreted. Rows with a
// ParseError are dropped (or kept, for tick timestamps) and never abort a scan.
type ParseError struct {
	Path   string
	Row    int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s row %d: %s", e.Path, e.Row, e.Reason)
}
