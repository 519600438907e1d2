package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/drummonds/resumeraster/config"
	"github.com/drummonds/resumeraster/engine/pdfrenderer"
	"github.com/drummonds/resumeraster/storage"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	pdfrenderer.Logger = Logger
	storage.Logger = Logger
}

type cliFlags struct {
	outDir  string
	jobs    int
	backend string
	verbose bool
}

func parseFlags(args []string) (cliFlags, []string, error) {
	var f cliFlags
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.StringVarP(&f.outDir, "out", "o", "", "Directory for PNG files (default: next to each PDF)")
	fs.IntVarP(&f.jobs, "jobs", "j", 0, "Files converted in parallel (default: GOMAXPROCS)")
	fs.StringVarP(&f.backend, "backend", "b", "", "Render backend: pdfium or fitz (overrides RENDER_BACKEND)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Print GOMAXPROCS adjustments")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] file.pdf...\n", filepath.Base(args[0]))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args[1:]); err != nil {
		return f, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return f, nil, fmt.Errorf("no input files")
	}
	return f, fs.Args(), nil
}

func main() {
	flags, inputs, err := parseFlags(os.Args)
	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(2)
	}

	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid
	if flags.verbose {
		_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}))
	} else {
		_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))
	}

	renderConfig, logger := config.SetupCLI()
	injectGlobals(logger)
	if flags.backend != "" {
		renderConfig.Backend = flags.backend
	}

	factory, err := pdfrenderer.NewEngineFactory(pdfrenderer.EngineOptions{
		Backend:         renderConfig.Backend,
		MaxInstances:    max(renderConfig.PDFiumMaxInstances, resolveJobs(flags.jobs)),
		InstanceTimeout: renderConfig.PDFiumInstanceTimeout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	loader := pdfrenderer.NewLoader(factory)
	converter := pdfrenderer.NewConverter(loader,
		pdfrenderer.WithMaxSurfacePixels(renderConfig.MaxSurfacePixels()))

	results := convertFiles(context.Background(), converter, inputs, flags.outDir, resolveJobs(flags.jobs))
	if err := loader.Close(); err != nil {
		Logger.Warn("Unable to close render engine", "error", err)
	}
	if failed := report(os.Stdout, results); failed > 0 {
		os.Exit(1)
	}
}

func resolveJobs(jobs int) int {
	if jobs > 0 {
		return jobs
	}
	return runtime.GOMAXPROCS(0)
}

type fileResult struct {
	input  string
	output string
	err    string
}

// convertFiles converts every input, at most jobs at a time. Results keep input order.
func convertFiles(ctx context.Context, converter *pdfrenderer.Converter, inputs []string, outDir string, jobs int) []fileResult {
	results := make([]fileResult, len(inputs))
	claimed := make(map[string]string, len(inputs))
	var g errgroup.Group
	g.SetLimit(max(jobs, 1))
	for i, input := range inputs {
		target := outputPath(input, outDir)
		if first, ok := claimed[target]; ok {
			results[i] = fileResult{input: input, err: fmt.Sprintf("Output %s is already written for %s", target, first)}
			continue
		}
		claimed[target] = input
		g.Go(func() error {
			results[i] = convertFile(ctx, converter, input, outDir)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func convertFile(ctx context.Context, converter *pdfrenderer.Converter, input, outDir string) fileResult {
	res := fileResult{input: input}
	data, err := os.ReadFile(input)
	if err != nil {
		res.err = fmt.Sprintf("Failed to read PDF: %v", err)
		return res
	}

	result := converter.Convert(ctx, pdfrenderer.Input{Name: filepath.Base(input), Bytes: data})
	if !result.OK() {
		res.err = result.Error
		return res
	}

	dir := outputDir(input, outDir)
	store, err := storage.NewFSStore(dir)
	if err != nil {
		res.err = fmt.Sprintf("Failed to open output directory: %v", err)
		return res
	}
	if err := store.Write(ctx, result.File.Name, result.File.Bytes); err != nil {
		res.err = fmt.Sprintf("Failed to write image: %v", err)
		return res
	}
	res.output = filepath.Join(store.Root(), result.File.Name)
	Logger.Debug("Converted", "input", input, "output", res.output, "size", len(result.File.Bytes))
	return res
}

func outputDir(input, outDir string) string {
	if outDir == "" {
		return filepath.Dir(input)
	}
	return outDir
}

// outputPath is where the PNG for input lands, used to catch two inputs sharing a name
func outputPath(input, outDir string) string {
	target := filepath.Join(outputDir(input, outDir), pdfrenderer.ImageName(filepath.Base(input)))
	if abs, err := filepath.Abs(target); err == nil {
		return abs
	}
	return target
}

// report prints one line per file and returns the number of failures
func report(w io.Writer, results []fileResult) int {
	failed := 0
	for _, r := range results {
		if r.err != "" {
			failed++
			fmt.Fprintf(w, "FAIL %s: %s\n", r.input, r.err)
			continue
		}
		fmt.Fprintf(w, "ok   %s -> %s\n", r.input, r.output)
	}
	return failed
}
