// Command ingest loads workbooks or delimited files into the configured
// dataset backend, prints what the detector decided per column and can
// export the cleaned rows.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"ledgerlens/internal/app"
	"ledgerlens/internal/config"
	"ledgerlens/internal/datastore"
	"ledgerlens/internal/files"
	"ledgerlens/internal/infrastructure"
	"ledgerlens/internal/services"
	"ledgerlens/internal/tabular"
	"ledgerlens/pkg/contracts/domain"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type options struct {
	configPath string
	in         string
	name       string
	sheet      string
	delimiter  string
	indexes    string
	export     string
	scores     bool
	raw        bool
	allSheets  bool
	preview    int
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "config file (defaults to ledgerlens.yaml, config.yaml or configs/config.yaml)")
	fs.StringVar(&o.in, "in", "", "xlsx, csv or tsv file, or a directory of them, to ingest (required)")
	fs.StringVar(&o.name, "name", "", "dataset name (defaults to the file name)")
	fs.StringVar(&o.sheet, "sheet", "", "worksheet to read (defaults to the first non-empty one)")
	fs.StringVar(&o.delimiter, "delimiter", "", "field delimiter for delimited files (sniffed when empty)")
	fs.StringVar(&o.indexes, "index", "", "comma separated columns to index")
	fs.StringVar(&o.export, "export", "", "write the cleaned rows to this .csv or .xlsx file")
	fs.BoolVar(&o.scores, "scores", false, "print per-format match fractions for every column")
	fs.BoolVar(&o.raw, "raw", false, "read stored workbook values instead of displayed text")
	fs.BoolVar(&o.allSheets, "all-sheets", false, "store every non-empty worksheet of a workbook as <name>_<sheet>")
	fs.IntVar(&o.preview, "preview", 0, "print the first N stored rows of each dataset")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	switch {
	case o.in == "":
		fs.Usage()
		return o, errors.New("-in is required")
	case utf8.RuneCountInString(o.delimiter) > 1:
		return o, fmt.Errorf("-delimiter must be a single character, got %q", o.delimiter)
	case o.allSheets && o.sheet != "":
		return o, errors.New("-sheet and -all-sheets are mutually exclusive")
	case o.allSheets && o.export != "":
		return o, errors.New("-export needs a single dataset and cannot be combined with -all-sheets")
	case o.preview < 0:
		return o, fmt.Errorf("-preview must not be negative, got %d", o.preview)
	}
	return o, nil
}

func (o options) ingestOptions() services.IngestOptions {
	opts := services.IngestOptions{
		Replace:   true,
		Sheet:     o.sheet,
		RawValues: o.raw,
	}
	if o.delimiter != "" {
		opts.Delimiter, _ = utf8.DecodeRuneInString(o.delimiter)
	}
	for _, c := range strings.Split(o.indexes, ",") {
		if c = strings.TrimSpace(c); c != "" {
			opts.Indexes = append(opts.Indexes, c)
		}
	}
	return opts
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	// a one-shot run has nothing to scrape
	cfg.Telemetry.MetricsEnabled = false

	logger := infrastructure.NewLogger(stderr, cfg.Logging.Level)
	ctx = infrastructure.EnsureTraceID(ctx)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := a.Stop(ctx); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	discovery := files.NewDiscovery(logger)
	if info, statErr := os.Stat(o.in); statErr == nil && info.IsDir() {
		return ingestDirectory(ctx, a.Datasets, discovery, o, stdout)
	}

	src, err := discovery.ValidateSource(o.in)
	if err != nil {
		return err
	}
	stored, err := ingestSource(ctx, a.Datasets, src, o.name, o, stdout)
	if err != nil {
		return err
	}

	if o.export != "" {
		meta := stored[0]
		if err := export(ctx, a.Datasets, meta.Name, o.export); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "exported %d rows to %s\n", meta.Rows, o.export)
	}
	return nil
}

// ingestDirectory stores every supported file of a directory as its own
// dataset named after the file
func ingestDirectory(ctx context.Context, svc *services.DatasetService, d *files.Discovery, o options, stdout io.Writer) error {
	if o.name != "" || o.export != "" {
		return errors.New("-name and -export need a single input file")
	}
	sources, err := d.FindSources(o.in)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no ingestible files in %s", o.in)
	}
	for _, src := range sources {
		if _, err := ingestSource(ctx, svc, src, "", o, stdout); err != nil {
			return fmt.Errorf("ingest %s: %w", src.Name, err)
		}
	}
	return nil
}

// ingestSource stores one file and reports every dataset it produced. With
// -all-sheets a workbook yields one dataset per non-empty sheet.
func ingestSource(ctx context.Context, svc *services.DatasetService, src files.FileInfo, name string, o options, stdout io.Writer) ([]domain.Metadata, error) {
	if !o.allSheets || src.Format != tabular.FormatExcel {
		opts := o.ingestOptions()
		meta, err := svc.IngestFile(ctx, name, src.Path, opts)
		if err != nil {
			return nil, err
		}
		return []domain.Metadata{meta}, report(ctx, svc, src.Path, opts, meta, o, stdout)
	}

	sheets, err := tabular.DataSheets(src.Path)
	if err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no data", src.Name)
	}
	if name == "" {
		name = tabular.TableName(src.Path)
	}
	stored := make([]domain.Metadata, 0, len(sheets))
	for _, sheet := range sheets {
		opts := o.ingestOptions()
		opts.Sheet = sheet
		meta, err := svc.IngestFile(ctx, name+"_"+sheet, src.Path, opts)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		if err := report(ctx, svc, src.Path, opts, meta, o, stdout); err != nil {
			return nil, err
		}
		stored = append(stored, meta)
	}
	return stored, nil
}

// report prints the detection summary, then the optional scores and preview
func report(ctx context.Context, svc *services.DatasetService, path string, opts services.IngestOptions, meta domain.Metadata, o options, stdout io.Writer) error {
	writeSummary(stdout, meta)
	if o.scores {
		analysis, err := svc.AnalyzeFile(ctx, path, opts, true)
		if err != nil {
			return err
		}
		writeScores(stdout, analysis)
	}
	if o.preview > 0 {
		rows, err := svc.Query(ctx, meta.Name, nil, datastore.WithLimit(o.preview))
		if err != nil {
			return err
		}
		writePreview(stdout, meta.Columns, rows)
	}
	return nil
}

func export(ctx context.Context, svc *services.DatasetService, name, path string) error {
	format, err := services.ParseExportFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := svc.Export(ctx, name, format, f, nil); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.Style().Format = table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	}
	return t
}

func writeSummary(out io.Writer, meta domain.Metadata) {
	fmt.Fprintf(out, "dataset %s: %d rows, %d columns\n", meta.Name, meta.Rows, len(meta.Columns))

	indexed := make(map[string]bool, len(meta.Indexes))
	for _, c := range meta.Indexes {
		indexed[c] = true
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"column", "type", "format", "confidence", "failures", "nulls", "indexed"})
	for _, c := range meta.Columns {
		r := meta.DTypes[c]
		idx := ""
		if indexed[c] {
			idx = "yes"
		}
		t.AppendRow(table.Row{
			c,
			r.Type,
			r.Format,
			fmt.Sprintf("%.2f", r.Confidence),
			meta.ParseFailureCounts[c],
			meta.NullCounts[c],
			idx,
		})
	}
	t.Render()
}

func writeScores(out io.Writer, analysis []services.ColumnAnalysis) {
	t := newTable(out)
	t.AppendHeader(table.Row{"column", "format", "type", "fraction", "matched"})
	for _, a := range analysis {
		for _, s := range a.Scores {
			t.AppendRow(table.Row{a.Column, s.Format, s.Type, fmt.Sprintf("%.2f", s.Fraction), s.Matched})
		}
		t.AppendSeparator()
	}
	t.Render()
}

func writePreview(out io.Writer, columns []string, rows []domain.Row) {
	t := newTable(out)
	header := table.Row{"id"}
	for _, c := range columns {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for _, r := range rows {
		line := table.Row{r.ID}
		for _, c := range columns {
			line = append(line, r.Get(c).String())
		}
		t.AppendRow(line)
	}
	t.Render()
}
