// Command explorer converts data files between the supported formats,
// optionally projecting columns and limiting rows on the way.
//
//	explorer -in people.csv -select name,age -head 10 -out people.parquet
//	explorer -in people.parquet -select name -explain
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/vishal-h/explorer"
	"github.com/vishal-h/explorer/internal/version"
)

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(fs.Output(), "explorer %s\n\nUsage: explorer -in FILE [options]\n\nOptions:\n", version.Version)
		fs.PrintDefaults()
	}
}

type options struct {
	config    string
	backend   string
	in        string
	from      string
	out       string
	to        string
	columns   string
	head      int64
	explain   bool
	version   bool
	jsonInfo  bool
	delimiter string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("explorer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = usage(fs)
	fs.StringVar(&o.config, "config", "", "YAML or JSON configuration `file`")
	fs.StringVar(&o.backend, "backend", "", "backend `name` (default from configuration)")
	fs.StringVar(&o.in, "in", "", "input `file`")
	fs.StringVar(&o.from, "from", "", "input `format` (default from the extension)")
	fs.StringVar(&o.out, "out", "", "output `file` (default: print the frame)")
	fs.StringVar(&o.to, "to", "", "output `format` (default from the extension)")
	fs.StringVar(&o.columns, "select", "", "comma separated `columns` to keep")
	fs.Int64Var(&o.head, "head", -1, "keep the first `n` rows")
	fs.BoolVar(&o.explain, "explain", false, "print the optimized plan instead of running it")
	fs.StringVar(&o.delimiter, "delimiter", "", "CSV field delimiter")
	fs.BoolVar(&o.version, "version", false, "print version information and exit")
	fs.BoolVar(&o.version, "v", false, "alias for -version")
	fs.BoolVar(&o.jsonInfo, "json", false, "print version information as JSON")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if !o.version && o.in == "" {
		fs.Usage()
		return nil, errors.New("-in is required")
	}
	return &o, nil
}

func formatFor(explicit, path string) (explorer.Format, error) {
	if explicit != "" {
		return explorer.ParseFormat(explicit)
	}
	return explorer.ParseFormat(filepath.Ext(path))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.version {
		info := version.Info()
		if o.jsonInfo {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		_, err := io.WriteString(stdout, info.String())
		return err
	}

	cfg, err := explorer.LoadConfig(o.config)
	if err != nil {
		return err
	}
	if o.backend != "" {
		cfg.DefaultBackend = o.backend
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	if err := explorer.Configure(cfg, logger); err != nil {
		return err
	}

	from, err := formatFor(o.from, o.in)
	if err != nil {
		return err
	}
	var ioOpts []explorer.Option
	if o.delimiter != "" {
		csv := explorer.DefaultCSVOptions()
		csv.Delimiter = []rune(o.delimiter)[0]
		ioOpts = append(ioOpts, explorer.WithCSVOptions(csv))
	}

	df, err := explorer.Read(ctx, explorer.File(o.in), from, ioOpts...)
	if err != nil {
		return err
	}
	defer df.Release()

	lf := df.Lazy()
	if o.columns != "" {
		lf = lf.Select(strings.Split(o.columns, ",")...)
	}
	if o.head >= 0 {
		lf = lf.Head(o.head)
	}
	if o.explain {
		plan, err := lf.Explain(ctx)
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, plan)
		return err
	}

	result, err := lf.Collect(ctx)
	if err != nil {
		return err
	}
	defer result.Release()
	logger.Debug("collected", "rows", result.NumRows(), "columns", result.NumCols())

	if o.out == "" {
		_, err = fmt.Fprintln(stdout, result)
		return err
	}
	to, err := formatFor(o.to, o.out)
	if err != nil {
		return err
	}
	return explorer.Write(ctx, result, explorer.File(o.out), to, ioOpts...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "explorer:", err)
		}
		os.Exit(1)
	}
}
