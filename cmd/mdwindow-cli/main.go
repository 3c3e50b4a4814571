package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"mdwindow/internal/config"
	"mdwindow/internal/domain"
	"mdwindow/internal/store"
	"mdwindow/internal/window"
	"mdwindow/pkg/mdwindow"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: mdwindow-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Server commands (-server, or $MDWINDOW_URL):\n")
	fmt.Fprintf(os.Stderr, "  paths          List day files for a product and dataset\n")
	fmt.Fprintf(os.Stderr, "  count          Count rows of the matching day files\n")
	fmt.Fprintf(os.Stderr, "  page           Stream minute bars page by page\n")
	fmt.Fprintf(os.Stderr, "  minutes        Stream minute bars inside a time range\n")
	fmt.Fprintf(os.Stderr, "  days           Stream day bars inside a date range\n")
	fmt.Fprintf(os.Stderr, "  ticks          Stream ticks inside a time range\n")
	fmt.Fprintf(os.Stderr, "  symbols        List the active symbols of a product\n")
	fmt.Fprintf(os.Stderr, "\nLocal commands (config from $MDWINDOW_CONFIG):\n")
	fmt.Fprintf(os.Stderr, "  init           Create the product/dataset folders\n")
	fmt.Fprintf(os.Stderr, "  du             Show the size of each dataset folder\n")
	fmt.Fprintf(os.Stderr, "  import-bars    Convert a parquet bar archive into day files\n")
	fmt.Fprintf(os.Stderr, "  import-trades  Convert a parquet trade archive into tick files\n")
	fmt.Fprintf(os.Stderr, "  audit          Show recent served queries\n")
	fmt.Fprintf(os.Stderr, "  version        Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "version":
		fmt.Printf("mdwindow-cli %s\n", version)
	case "symbols":
		err = runSymbols(ctx, args, os.Stdout)
	case "paths", "count", "page", "minutes", "days", "ticks":
		err = runRemote(ctx, cmd, args, os.Stdout)
	case "init", "du", "import-bars", "import-trades", "audit":
		err = runLocal(ctx, cmd, args, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Server commands
// ---------------------------------------------------------------------------

type selection struct {
	product, dataset, symbol, start, end string
}

func (s *selection) register(fs *flag.FlagSet, dataset string) {
	fs.StringVar(&s.product, "product", string(domain.ProductFund), "product type code (11, 12, 14, 16, 21, 22, 31)")
	fs.StringVar(&s.dataset, "dataset", dataset, "dataset (1d, 1m, 15m, tick)")
	fs.StringVar(&s.symbol, "symbol", "", "symbol filter")
	fs.StringVar(&s.start, "start", "", "first day, yyyyMMdd")
	fs.StringVar(&s.end, "end", "", "last day, yyyyMMdd")
}

func (s *selection) query() mdwindow.PathsQuery {
	return mdwindow.PathsQuery{Product: s.product, Dataset: s.dataset, Symbol: s.symbol, Start: s.start, End: s.end}
}

func defaultServer() string {
	if u := os.Getenv("MDWINDOW_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func runRemote(ctx context.Context, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	server := fs.String("server", defaultServer(), "mdwindow-server base URL")
	var sel selection
	dataset := "1m"
	switch cmd {
	case "days":
		dataset = "1d"
	case "ticks":
		dataset = "tick"
	}
	sel.register(fs, dataset)
	count := fs.Int("count", 0, "rows per page (0 = server cap)")
	capName := fs.String("cap", "minute", "minute row cap for page and minutes (minute, minute-half)")
	from := fs.String("from", "", "range start timestamp or date")
	to := fs.String("to", "", "range end timestamp or date")
	fs.Parse(args)

	half, err := halfCap(*capName)
	if err != nil {
		return err
	}

	c := mdwindow.NewClient(*server)
	files, err := c.Paths(ctx, sel.query())
	if err != nil {
		return err
	}

	printData := func(data string) error {
		_, err := io.WriteString(out, data)
		return err
	}

	switch cmd {
	case "paths":
		for _, f := range files {
			fmt.Fprintln(out, f)
		}
		return nil

	case "count":
		n, err := c.Count(ctx, files, sel.dataset, sel.symbol)
		if err != nil {
			return err
		}
		kind := "exact"
		if n.Estimated {
			kind = "estimated"
		}
		fmt.Fprintf(out, "files: %d\nrows:  %s (%s)\nsize:  %s\n", len(files), humanize.Comma(int64(n.Rows)), kind, n.Size)
		return nil

	case "page":
		return mdwindow.Drain(ctx, files, func(ctx context.Context, pos mdwindow.Position) (mdwindow.Window, error) {
			return c.MinutePage(ctx, pos, *count, half)
		}, func(w mdwindow.Window) error { return printData(w.Data) })

	case "ticks":
		return mdwindow.Drain(ctx, files, func(ctx context.Context, pos mdwindow.Position) (mdwindow.Window, error) {
			return c.Ticks(ctx, pos, *count, *from, *to)
		}, func(w mdwindow.Window) error { return printData(w.Data) })

	case "minutes":
		return mdwindow.DrainFilter(ctx, files, func(ctx context.Context, files []string) (mdwindow.FilterResult, error) {
			return c.Minutes(ctx, files, *from, *to, half)
		}, func(r mdwindow.FilterResult) error { return printData(r.Data) })

	case "days":
		return mdwindow.DrainFilter(ctx, files, func(ctx context.Context, files []string) (mdwindow.FilterResult, error) {
			return c.Days(ctx, files, sel.symbol, *from, *to)
		}, func(r mdwindow.FilterResult) error { return printData(r.Data) })
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func runSymbols(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("symbols", flag.ExitOnError)
	server := fs.String("server", defaultServer(), "mdwindow-server base URL")
	product := fs.String("product", string(domain.ProductUSEquity), "product type code")
	start := fs.Int("start", 0, "first symbol index")
	end := fs.Int("end", 0, "end symbol index, exclusive (0 = server batch)")
	countOnly := fs.Bool("count", false, "print only the number of symbols")
	fs.Parse(args)

	c := mdwindow.NewClient(*server)
	if *countOnly {
		n, err := c.SymbolCount(ctx, *product)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, humanize.Comma(int64(n)))
		return nil
	}
	resp, err := c.Symbols(ctx, *product, *start, *end)
	if err != nil {
		return err
	}
	for _, sym := range resp.Symbols {
		fmt.Fprintln(out, sym)
	}
	return nil
}

// halfCap reports whether the named cap selects the half-size minute cap.
// Only minute caps apply to minute bars.
func halfCap(name string) (bool, error) {
	kind, err := window.ParseCapKind(name)
	if err != nil {
		return false, err
	}
	switch kind {
	case window.CapMinute:
		return false, nil
	case window.CapMinuteHalf:
		return true, nil
	}
	return false, fmt.Errorf("cap %s does not apply to minute bars", kind)
}

// ---------------------------------------------------------------------------
// Local commands
// ---------------------------------------------------------------------------

func runLocal(ctx context.Context, cmd string, args []string, out io.Writer) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	dataDir := fs.String("data", cfg.Storage.DataDir, "data root")
	product := fs.String("product", string(domain.ProductFund), "product type code")
	dataset := fs.String("dataset", "1m", "bar dataset for import-bars (1d, 1m, 15m)")
	tz := fs.String("tz", "UTC", "time zone for day boundaries")
	limit := fs.Int("limit", 20, "audit events to show")
	fs.Parse(args)

	switch cmd {
	case "init":
		n := store.InitFolders(*dataDir, logger)
		fmt.Fprintf(out, "created %d folders under %s\n", n, *dataDir)
		return nil

	case "du":
		return printUsage(*dataDir, out)

	case "import-bars", "import-trades":
		if fs.NArg() == 0 {
			return fmt.Errorf("expected one or more parquet files")
		}
		loc, err := time.LoadLocation(*tz)
		if err != nil {
			return fmt.Errorf("loading time zone: %w", err)
		}
		im := store.NewParquetImporter(*dataDir, loc, logger)
		for _, src := range fs.Args() {
			var written []string
			if cmd == "import-bars" {
				ds, err := domain.ParseDataset(*dataset)
				if err != nil {
					return err
				}
				written, err = im.ImportBars(src, domain.ProductType(*product), ds)
				if err != nil {
					return err
				}
			} else {
				written, err = im.ImportTrades(src, domain.ProductType(*product))
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "%s: wrote %d day files\n", src, len(written))
		}
		return nil

	case "audit":
		db, err := store.NewSQLiteStore(cfg.Storage.AuditDB)
		if err != nil {
			return err
		}
		defer db.Close()
		events, err := db.Recent(ctx, *limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tOP\tFILES\tROWS\tREMAINING\tCURSOR\tTOOK\tERROR")
		for _, ev := range events {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
				humanize.Time(ev.CreatedAt), ev.Op, ev.Files, ev.Rows, ev.Remaining, ev.Cursor,
				ev.Duration.Round(time.Millisecond), ev.Error)
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// printUsage prints the on-disk size of every non-empty dataset folder.
func printUsage(root string, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tDATASET\tSIZE")
	var total int64
	for _, p := range domain.ProductTypes {
		for _, ds := range domain.Datasets {
			size, err := store.DirSize(store.DatasetDir(root, p, ds))
			if err != nil || size == 0 {
				continue
			}
			total += size
			fmt.Fprintf(tw, "%s (%s)\t%s\t%s\n", p, p.Label(), ds, store.FormatSize(size))
		}
	}
	fmt.Fprintf(tw, "TOTAL\t\t%s\n", store.FormatSize(total))
	return tw.Flush()
}
