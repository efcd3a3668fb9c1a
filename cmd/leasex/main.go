package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/joseph-ayodele/lease-abstractor/internal/common"
	"github.com/joseph-ayodele/lease-abstractor/internal/document"
	"github.com/joseph-ayodele/lease-abstractor/internal/export"
	"github.com/joseph-ayodele/lease-abstractor/internal/extract"
	"github.com/joseph-ayodele/lease-abstractor/internal/ingest"
	"github.com/joseph-ayodele/lease-abstractor/internal/pipeline"
	"github.com/joseph-ayodele/lease-abstractor/internal/qa"
	repo "github.com/joseph-ayodele/lease-abstractor/internal/repository"
	"github.com/joseph-ayodele/lease-abstractor/internal/schema"
)

const usage = `usage:
  leasex extract [-schema file.json] [-out abstract.xlsx|.json|.html|.md] [-inmem] lease.pdf [amendment.pdf ...]
  leasex ask [-transcript qa.md] lease.pdf [amendment.pdf ...]
  leasex units [-schema file.json]
`

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	if len(os.Args) < 2 {
		printError(usage)
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var code int
	switch os.Args[1] {
	case "extract":
		code = runExtract(ctx, cfg, logger, os.Args[2:])
	case "ask":
		code = runAsk(ctx, cfg, logger, os.Args[2:])
	case "units":
		code = runUnits(cfg, os.Args[2:])
	default:
		printError(usage)
		code = 2
	}
	os.Exit(code)
}

func runExtract(ctx context.Context, cfg *common.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	schemaFile := fs.String("schema", cfg.Extract.SchemaFile, "schema JSON file (default: built-in lease schema)")
	out := fs.String("out", "lease-abstract.xlsx", "export file; format follows the extension")
	inmem := fs.Bool("inmem", false, "keep run history in an in-memory SQLite database")
	_ = fs.Parse(args)
	cfg.Extract.SchemaFile = *schemaFile

	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		return 1
	}
	s, err := pipeline.LoadSchema(cfg.Extract)
	if err != nil {
		printError("Error: schema: %v\n", err)
		return 1
	}
	lib, ok := loadLibrary(cfg, logger, fs.Args())
	if !ok {
		return 1
	}
	gen, err := pipeline.NewGenerator(cfg.LLM, logger)
	if err != nil {
		printError("Error: %v\n", err)
		return 1
	}

	dbCfg := repo.ConfigFrom(cfg.Database)
	if *inmem {
		dbCfg.URL = ":memory:"
	}
	var runs repo.RunRepository
	db, err := repo.Open(ctx, dbCfg, logger)
	if err == nil {
		err = db.Migrate(ctx)
		if err != nil {
			db.Close()
		}
	}
	if err != nil {
		logger.Warn("run history disabled", "error", err)
	} else {
		defer db.Close()
		runs = repo.NewRunRepository(db, logger)
	}

	sched := extract.NewScheduler(gen, logger, extract.WithStrictSchema(cfg.Extract.StrictSchema))
	proc := pipeline.NewProcessor(logger, lib, s, sched, runs, cfg.LLM.Provider)

	res, runErr := proc.Extract(ctx, func(msg string) { fmt.Println(msg) }, extract.Hooks{
		OnUnitStart: func(u schema.Unit, i, n int) {
			fmt.Printf("[%d/%d] Extracting %s...\n", i+1, n, u.Label)
		},
		OnSnapshot: func(_ schema.Unit, snap extract.Record) {
			keys := make([]string, 0, len(snap))
			for k := range snap {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Printf("      record: %s\n", strings.Join(keys, ", "))
		},
	})
	if runErr != nil {
		printError("Extraction failed: %v\n", runErr)
		if errors.Is(runErr, common.ErrRunInProgress) || res == nil || len(res.Record) == 0 {
			return 1
		}
		printError("Exporting the %d of %d units completed before the failure.\n", res.UnitsDone, res.UnitsTotal)
	}

	svc := export.NewService(s, logger)
	title := "Lease Abstract: " + strings.Join(lib.Names(), ", ")
	if err := svc.WriteFile(*out, res.Record, title); err != nil {
		printError("Error: export: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %s (run %s)\n", *out, res.RunID)
	if runErr != nil {
		return 1
	}
	return 0
}

func runAsk(ctx context.Context, cfg *common.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	transcript := fs.String("transcript", "", "write the Q&A transcript to this Markdown file on exit")
	watch := fs.String("watch", "", "directory to watch; PDFs dropped there join the document set")
	_ = fs.Parse(args)

	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		return 1
	}
	lib, ok := loadLibrary(cfg, logger, fs.Args())
	if !ok {
		return 1
	}
	gen, err := pipeline.NewGenerator(cfg.LLM, logger)
	if err != nil {
		printError("Error: %v\n", err)
		return 1
	}
	sess := qa.NewSession(lib, gen, logger)

	// build the text up front so the first answer is not delayed by OCR
	if _, err := lib.Text(ctx, func(msg string) { fmt.Println(msg) }); err != nil {
		printError("Error: %v\n", err)
		return 1
	}

	if *watch != "" {
		if err := watchDocuments(ctx, lib, *watch, logger); err != nil {
			printError("Error: watch: %v\n", err)
			return 1
		}
	}

	fmt.Println("Ask a question about the lease (Ctrl-D to finish).")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() || ctx.Err() != nil {
			break
		}
		q := strings.TrimSpace(sc.Text())
		if q == "" {
			continue
		}
		msg, err := sess.Ask(ctx, q)
		if err != nil {
			var qe *qa.QAError
			if errors.As(err, &qe) {
				printError("%s\n", qe.Notice)
				continue
			}
			printError("Error: %v\n", err)
			continue
		}
		fmt.Printf("\n%s\n\n", msg.Text)
	}
	fmt.Println()

	if *transcript != "" {
		if err := os.WriteFile(*transcript, []byte(export.Transcript(sess.Transcript())), 0o644); err != nil {
			printError("Error: transcript: %v\n", err)
			return 1
		}
		fmt.Printf("Wrote %s\n", *transcript)
	}
	return 0
}

func runUnits(cfg *common.Config, args []string) int {
	fs := flag.NewFlagSet("units", flag.ExitOnError)
	schemaFile := fs.String("schema", cfg.Extract.SchemaFile, "schema JSON file (default: built-in lease schema)")
	_ = fs.Parse(args)
	cfg.Extract.SchemaFile = *schemaFile

	s, err := pipeline.LoadSchema(cfg.Extract)
	if err != nil {
		printError("Error: schema: %v\n", err)
		return 1
	}
	for i, u := range schema.Partition(s) {
		fmt.Printf("%2d. %-50s %s\n", i+1, u.Label, u.Path())
	}
	return 0
}

// loadLibrary adds the given files, and PDFs under given directories, in order. Rejected files are reported;
// it fails only when nothing usable remains.
func loadLibrary(cfg *common.Config, logger *slog.Logger, paths []string) (*document.Library, bool) {
	if len(paths) == 0 {
		printError("Error: at least one PDF is required\n%s", usage)
		return nil, false
	}
	files, stats, err := ingest.CollectPDFs(paths, true)
	if err != nil {
		printError("Error: %v\n", err)
		return nil, false
	}
	logger.Debug("inputs collected", "scanned", stats.Scanned, "matched", stats.Matched, "skipped", stats.Skipped)
	lib, err := pipeline.NewLibrary(cfg.OCR, logger)
	if err != nil {
		printError("Error: %v\n", err)
		return nil, false
	}
	for _, p := range files {
		in, err := document.InputFromFile(p)
		if err != nil {
			printError("Skipping %s: %v\n", p, err)
			continue
		}
		for _, n := range lib.Add(in) {
			printError("Skipping %s: %s\n", n.Document, n.Message)
		}
	}
	if len(lib.Documents()) == 0 {
		printError("Error: %v\n", common.ErrNoDocuments)
		return nil, false
	}
	return lib, true
}

// watchDocuments adds PDFs that appear under dir to the library. The next
// question rebuilds the text for the new set.
func watchDocuments(ctx context.Context, lib *document.Library, dir string, logger *slog.Logger) error {
	events, errs, err := ingest.Watch(ctx, ingest.WatchConfig{Roots: []string{dir}}, logger)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case path, ok := <-events:
				if !ok {
					return
				}
				in, err := document.InputFromFile(path)
				if err == nil {
					var replaced bool
					if replaced, err = lib.Put(in); err == nil {
						verb := "Added"
						if replaced {
							verb = "Reloaded"
						}
						fmt.Printf("\n%s %s\n> ", verb, in.Name)
						continue
					}
				}
				printError("\nSkipping %s: %v\n> ", path, err)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Warn("watch error", "error", err)
			}
		}
	}()
	return nil
}
