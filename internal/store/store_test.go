package store

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"mdwindow/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadRowsSkipsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "20240102.csv")
	writeFile(t, path, "symbol,bob,eob\r\nAAA,2024-01-02,2024-01-02\r\n\r\nBBB,2024-01-02,2024-01-02\n")

	rows, err := ReadRows(path)
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	want := []string{"AAA,2024-01-02,2024-01-02", "BBB,2024-01-02,2024-01-02"}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("ReadRows = %q, want %q", rows, want)
	}

	n, err := CountRows(path)
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if n != 2 {
		t.Errorf("CountRows = %d, want 2", n)
	}
}

func TestReadRowsHeaderOnlyAndEmpty(t *testing.T) {
	dir := t.TempDir()
	headerOnly := filepath.Join(dir, "h.csv")
	writeFile(t, headerOnly, "symbol,bob,eob\n")
	empty := filepath.Join(dir, "e.csv")
	writeFile(t, empty, "")

	for _, p := range []string{headerOnly, empty} {
		rows, err := ReadRows(p)
		if err != nil {
			t.Errorf("ReadRows(%s): %v", filepath.Base(p), err)
		}
		if len(rows) != 0 {
			t.Errorf("ReadRows(%s) = %d rows, want 0", filepath.Base(p), len(rows))
		}
	}
}

func TestReadRowsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.csv")
	_, err := ReadRows(path)

	var fre *FileReadError
	if !errors.As(err, &fre) {
		t.Fatalf("ReadRows error = %v, want *FileReadError", err)
	}
	if fre.Path != path {
		t.Errorf("FileReadError.Path = %q, want %q", fre.Path, path)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("FileReadError should unwrap to fs.ErrNotExist")
	}
}

func TestColumnIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	writeFile(t, path, "\ufeffSymbol, Open ,BOB,EOB,\"created_at\"\nAAA,1,2,3,4\n")

	tests := []struct {
		name string
		want int
	}{
		{"symbol", 0},
		{"open", 1},
		{"bob", 2},
		{"eob", 3},
		{"created_at", 4},
		{"volume", -1},
	}
	for _, tt := range tests {
		if got := ColumnIndex(path, tt.name); got != tt.want {
			t.Errorf("ColumnIndex(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}

	if got := BobIndex(filepath.Join(t.TempDir(), "nope.csv")); got != -1 {
		t.Errorf("BobIndex(missing) = %d, want -1", got)
	}
	if SymbolIndex(path) != 0 || CreatedAtIndex(path) != 4 {
		t.Error("SymbolIndex/CreatedAtIndex mismatch")
	}
}

func TestSplitFields(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "", "c"}},
		{"", []string{""}},
		{`a,"b,c",d`, []string{"a", "b,c", "d"}},
		{`"x",""`, []string{"x", ""}},
		{`"say ""hi""",2`, []string{`say "hi"`, "2"}},
		{`1,"2024-04-28 09:15:00+0800"`, []string{"1", "2024-04-28 09:15:00+0800"}},
	}
	for _, tt := range tests {
		if got := SplitFields(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitFields(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	minDir := DatasetDir(root, domain.ProductFund, domain.DatasetMinute)
	for _, p := range []string{
		"202401/20240103/AAA.csv",
		"202401/20240101/AAA.csv",
		"202401/20240102/AAA.csv",
		"202401/20240102/BBB.csv",
		"202401/2024010/AAA.csv", // not a day folder
		"202401/20240102/AAA.txt",
		"AAA.csv", // directly in dataset dir
	} {
		writeFile(t, filepath.Join(minDir, p), "symbol,bob,eob\n")
	}

	got, err := Discover(root, DiscoverQuery{
		Product: domain.ProductFund,
		Dataset: domain.DatasetMinute,
		Start:   "20240102",
		End:     "20240103",
		Symbol:  "AAA",
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []string{
		filepath.Join(minDir, "AAA.csv"),
		filepath.Join(minDir, "202401/20240102/AAA.csv"),
		filepath.Join(minDir, "202401/20240103/AAA.csv"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Discover =\n  %q\nwant\n  %q", got, want)
	}

	all, err := Discover(root, DiscoverQuery{Product: domain.ProductFund, Dataset: domain.DatasetMinute})
	if err != nil {
		t.Fatalf("Discover(all): %v", err)
	}
	if len(all) != 5 {
		t.Errorf("Discover(all) returned %d files, want 5: %q", len(all), all)
	}
	if all[1] != filepath.Join(minDir, "202401/20240101/AAA.csv") {
		t.Errorf("Discover(all)[1] = %s, want the 20240101 file", all[1])
	}

	none, err := Discover(root, DiscoverQuery{Product: domain.ProductCrypto, Dataset: domain.DatasetTick})
	if err != nil || none != nil {
		t.Errorf("Discover(missing dir) = %v, %v; want nil, nil", none, err)
	}
}

func TestLatestSymbols(t *testing.T) {
	root := t.TempDir()
	minDir := DatasetDir(root, domain.ProductFund, domain.DatasetMinute)
	for _, p := range []string{
		"202401/20240102/AAA.csv",
		"202401/20240102/BBB.csv",
		"202401/20240103/CCC.csv",
		"202401/20240103/AAA.csv",
	} {
		writeFile(t, filepath.Join(minDir, p), "symbol,bob,eob\n")
	}
	tickDir := DatasetDir(root, domain.ProductFutures, domain.DatasetTick)
	writeFile(t, filepath.Join(tickDir, "202401/20240105/IF2401.csv"), "symbol,created_at\n")

	got, err := LatestSymbols(root, domain.ProductFund)
	if err != nil {
		t.Fatalf("LatestSymbols: %v", err)
	}
	if want := []string{"AAA", "CCC"}; !reflect.DeepEqual(got, want) {
		t.Errorf("LatestSymbols(fund) = %q, want %q", got, want)
	}

	got, err = LatestSymbols(root, domain.ProductFutures)
	if err != nil || !reflect.DeepEqual(got, []string{"IF2401"}) {
		t.Errorf("LatestSymbols(futures) = %q, %v; want [IF2401] from tick files", got, err)
	}

	got, err = LatestSymbols(root, domain.ProductIndex)
	if err != nil || len(got) != 0 {
		t.Errorf("LatestSymbols(index) = %q, %v; want none", got, err)
	}
}

func TestDiscoverDayIgnoresSymbol(t *testing.T) {
	root := t.TempDir()
	day := DatasetDir(root, domain.ProductAShare, domain.DatasetDay)
	writeFile(t, filepath.Join(day, "202401/20240102/20240102.csv"), "symbol,bob,eob\n")

	got, err := Discover(root, DiscoverQuery{Product: domain.ProductAShare, Dataset: domain.DatasetDay, Symbol: "AAA"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("Discover(day) = %q, want one file", got)
	}
}

func TestEstimator(t *testing.T) {
	dir := t.TempDir()
	day1 := filepath.Join(dir, "d1.csv")
	day2 := filepath.Join(dir, "d2.csv")
	writeFile(t, day1, "symbol,close\nAAA,1\nBBB,2\nAAA,3\n")
	writeFile(t, day2, "close,symbol\n4,AAA\n5,CCC\n")

	est := NewEstimator(0, 0, NewCSVSource(), discardLogger())

	if got := est.EstimateRows([]string{day1, day2}, domain.DatasetDay, "AAA"); got != 3 {
		t.Errorf("EstimateRows(day, AAA) = %d, want 3", got)
	}
	if got := est.EstimateRows([]string{day1, day2, filepath.Join(dir, "missing.csv")}, domain.DatasetDay, ""); got != 5 {
		t.Errorf("EstimateRows(day, all) = %d, want 5", got)
	}

	big := filepath.Join(dir, "m.csv")
	writeFile(t, big, strings.Repeat("x", 1200))
	if got := est.EstimateRows([]string{big}, domain.DatasetMinute15, ""); got != 10 {
		t.Errorf("EstimateRows(15m) = %d, want 10", got)
	}
	if got := est.EstimateRows([]string{big}, domain.DatasetTick, ""); got != 1200/DefaultTickBytesPerRow {
		t.Errorf("EstimateRows(tick) = %d, want %d", got, 1200/DefaultTickBytesPerRow)
	}
	if got := est.TotalSize([]string{big, filepath.Join(dir, "missing.csv")}); got != 1200 {
		t.Errorf("TotalSize = %d, want 1200", got)
	}
}

// readCountingSource records how often rows are materialized.
type readCountingSource struct {
	*CSVSource
	reads int
}

func (s *readCountingSource) ReadRows(path string) ([]string, error) {
	s.reads++
	return s.CSVSource.ReadRows(path)
}

func TestEstimatorCountsWithoutReadingRows(t *testing.T) {
	dir := t.TempDir()
	day := filepath.Join(dir, "d1.csv")
	writeFile(t, day, "symbol,close\nAAA,1\n\nBBB,2\nAAA,3\n")

	src := &readCountingSource{CSVSource: NewCSVSource()}
	est := NewEstimator(0, 0, src, discardLogger())

	if got := est.EstimateRows([]string{day}, domain.DatasetDay, ""); got != 3 {
		t.Errorf("EstimateRows(day, all) = %d, want 3", got)
	}
	if src.reads != 0 {
		t.Errorf("ReadRows called %d times for an unfiltered count, want 0", src.reads)
	}

	if got := est.EstimateRows([]string{day}, domain.DatasetDay, "AAA"); got != 2 {
		t.Errorf("EstimateRows(day, AAA) = %d, want 2", got)
	}
	if src.reads != 1 {
		t.Errorf("ReadRows called %d times for a symbol count, want 1", src.reads)
	}
}

func TestDirSizeAndFormat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "x.csv"), strings.Repeat("a", 1000))
	writeFile(t, filepath.Join(dir, "b.csv"), strings.Repeat("b", 24))

	size, err := DirSize(dir)
	if err != nil {
		t.Fatalf("DirSize: %v", err)
	}
	if size != 1024 {
		t.Errorf("DirSize = %d, want 1024", size)
	}
	if got := FormatSize(size); got != "1.0 KiB" {
		t.Errorf("FormatSize(1024) = %q, want %q", got, "1.0 KiB")
	}
}

func TestInitFolders(t *testing.T) {
	base := t.TempDir()
	log := discardLogger()

	n := InitFolders(base, log)
	want := len(domain.ProductTypes) * len(domain.Datasets)
	if n != want {
		t.Errorf("InitFolders created %d folders, want %d", n, want)
	}
	if _, err := os.Stat(DatasetDir(base, domain.ProductUSOption, domain.DatasetTick)); err != nil {
		t.Errorf("expected tick folder for us options: %v", err)
	}

	if again := InitFolders(base, log); again != 0 {
		t.Errorf("second InitFolders created %d folders, want 0", again)
	}
}

func TestParquetImportBars(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bars.parquet")
	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	bars := []BarRecord{
		{Symbol: "MSFT", Timestamp: d1.UnixMilli(), Open: 400, High: 405, Low: 399, Close: 403, Volume: 30},
		{Symbol: "AAPL", Timestamp: d1.UnixMilli(), Open: 185, High: 186.5, Low: 184, Close: 185.5, Volume: 50},
		{Symbol: "AAPL", Timestamp: d2.UnixMilli(), Open: 185.5, High: 187, Low: 185, Close: 186, Volume: 45},
	}
	if err := writeParquetFile(src, bars); err != nil {
		t.Fatalf("writeParquetFile: %v", err)
	}

	root := filepath.Join(dir, "data")
	im := NewParquetImporter(root, time.UTC, discardLogger())
	written, err := im.ImportBars(src, domain.ProductUSEquity, domain.DatasetDay)
	if err != nil {
		t.Fatalf("ImportBars: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("ImportBars wrote %d files, want 2", len(written))
	}

	wantPath := filepath.Join(root, "21", "1d", "202401", "20240102", "20240102.csv")
	if written[0] != wantPath {
		t.Errorf("first file = %s, want %s", written[0], wantPath)
	}

	if BobIndex(wantPath) != 8 || ColumnIndex(wantPath, "eob") != 9 {
		t.Error("bob/eob must be adjacent at 8/9")
	}
	rows, err := ReadRows(wantPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("day file has %d rows, want 2", len(rows))
	}
	if !strings.HasSuffix(rows[0], "2024-01-02 00:00:00+00:00,2024-01-02 00:00:00+00:00") {
		t.Errorf("unexpected bob/eob in row %q", rows[0])
	}

	// Discovery finds exactly what was written.
	found, err := Discover(root, DiscoverQuery{Product: domain.ProductUSEquity, Dataset: domain.DatasetDay})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(found, written) {
		t.Errorf("Discover = %q, want %q", found, written)
	}
}

func TestParquetImportMinuteBarsRejectsTick(t *testing.T) {
	im := NewParquetImporter(t.TempDir(), nil, discardLogger())
	if _, err := im.ImportBars("unused.parquet", domain.ProductFund, domain.DatasetTick); err == nil {
		t.Error("ImportBars(tick) should fail")
	}
}

func TestParquetImportTrades(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "trades.parquet")
	ts := time.Date(2024, 6, 14, 13, 30, 0, 0, time.UTC)
	trades := []TradeRecord{
		{Symbol: "tsla", Timestamp: ts.Add(time.Second).UnixMilli(), Price: 180.5, Size: 10, Exchange: "V,Q", ID: "2"},
		{Symbol: "tsla", Timestamp: ts.UnixMilli(), Price: 180.25, Size: 5, Exchange: "V", ID: "1"},
	}
	if err := writeParquetFile(src, trades); err != nil {
		t.Fatalf("writeParquetFile: %v", err)
	}

	root := filepath.Join(dir, "data")
	im := NewParquetImporter(root, nil, discardLogger())
	written, err := im.ImportTrades(src, domain.ProductUSEquity)
	if err != nil {
		t.Fatalf("ImportTrades: %v", err)
	}
	want := filepath.Join(root, "21", "tick", "202406", "20240614", "TSLA.csv")
	if len(written) != 1 || written[0] != want {
		t.Fatalf("ImportTrades wrote %q, want [%s]", written, want)
	}

	rows, err := ReadRows(want)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("tick file has %d rows, want 2", len(rows))
	}
	// Sorted by time, quoted exchange survives the tokenizer.
	first := SplitFields(rows[0])
	second := SplitFields(rows[1])
	if first[4] != "1" || second[3] != "V,Q" {
		t.Errorf("unexpected rows %q / %q", first, second)
	}
	if CreatedAtIndex(want) != 5 {
		t.Errorf("CreatedAtIndex = %d, want 5", CreatedAtIndex(want))
	}
}

func TestSQLiteStoreRecordRecent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit", "test.db")

	st, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()

	ctx := context.Background()
	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	for i, op := range []string{"minute", "day", "tick"} {
		ev := QueryEvent{
			Op:        op,
			Files:     3,
			Rows:      100 * (i + 1),
			Remaining: 2 - i,
			Duration:  15 * time.Millisecond,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := st.Record(ctx, ev); err != nil {
			t.Fatalf("Record(%s): %v", op, err)
		}
	}

	got, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d events, want 2", len(got))
	}
	if got[0].Op != "tick" || got[1].Op != "day" {
		t.Errorf("Recent order = [%s %s], want [tick day]", got[0].Op, got[1].Op)
	}
	if got[0].ID == "" {
		t.Error("Record should assign an ID")
	}
	if got[0].Duration != 15*time.Millisecond {
		t.Errorf("Duration = %v, want 15ms", got[0].Duration)
	}
	if !got[0].CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("CreatedAt = %v, want %v", got[0].CreatedAt, base.Add(2*time.Second))
	}
}
