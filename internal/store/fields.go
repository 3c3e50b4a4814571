package store

import "strings"

// SplitFields splits one record on commas. A double quote toggles quoting so
// that quoted fields may embed commas; the quotes themselves are dropped and a
// doubled quote inside a quoted field yields one literal quote.
func SplitFields(line string) []string {
	if strings.IndexByte(line, '"') < 0 {
		return strings.Split(line, ",")
	}

	fields := make([]string, 0, strings.Count(line, ",")+1)
	var b strings.Builder
	inQuotes := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && inQuotes && i+1 < len(line) && line[i+1] == '"':
			b.WriteByte('"')
			i++
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	return append(fields, b.String())
}
