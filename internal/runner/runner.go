// Package runner implements the parse, merge and write pipeline of onefile.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/zytedata/onefile/internal/adapters/junit"
	"github.com/zytedata/onefile/internal/adapters/pytesthtml"
	"github.com/zytedata/onefile/internal/classify"
	"github.com/zytedata/onefile/internal/logging"
	"github.com/zytedata/onefile/internal/merge"
	"github.com/zytedata/onefile/internal/model"
	"github.com/zytedata/onefile/internal/report"
)

// Default patterns used to pick report files inside input directories.
const (
	DefaultJUnitPattern = "*.xml"
	DefaultHTMLPattern  = "*.html"
)

// Config holds the configuration for the runner.
type Config struct {
	Format     model.Format
	Inputs     []string // files or directories, merged in this order
	Pattern    string   // glob applied to files found in directories
	OutDir     string   // defaults to the current working directory
	OutputName string   // defaults to the adapter output name
	Fs         afero.Fs
	Log        logrus.FieldLogger
}

// Result holds the outcome of a merge.
type Result struct {
	Sources []string
	Output  string
	Summary *model.Summary
}

// Run discovers the inputs, parses all of them, merges them and writes the merged report.
// Any parse failure aborts the run before anything is written.
func Run(ctx context.Context, cfg *Config) (*Result, error) {
	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("at least one input file or directory is required")
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Log == nil {
		cfg.Log = logging.Discard()
	}

	pattern := cfg.Pattern
	if pattern == "" {
		pattern = defaultPattern(cfg.Format)
	}

	switch cfg.Format {
	case model.FormatJUnit:
		adapter := junit.New(cfg.Fs, junit.WithLogger(cfg.Log))
		return execute[model.TestSuite](ctx, cfg, adapter, pattern, (*merge.Merger).Suites, report.FromSuite)
	case model.FormatHTML:
		adapter := pytesthtml.New(cfg.Fs, pytesthtml.WithLogger(cfg.Log))
		return execute[model.Run](ctx, cfg, adapter, pattern, (*merge.Merger).Runs, report.FromRun)
	default:
		return nil, fmt.Errorf("unsupported format %q, expected %q or %q", cfg.Format, model.FormatJUnit, model.FormatHTML)
	}
}

// execute runs the pipeline for one collection type.
func execute[C any](
	ctx context.Context,
	cfg *Config,
	adapter model.Adapter[C],
	pattern string,
	fold func(*merge.Merger, []C) C,
	summarize func(C, []string, string, []model.Change) *model.Summary,
) (*Result, error) {
	output, err := outputPath(cfg, adapter.DefaultOutput())
	if err != nil {
		return nil, err
	}

	sources, err := Discover(ctx, cfg.Fs, cfg.Inputs, pattern, output)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no input files matching %q found in %s", pattern, strings.Join(cfg.Inputs, ", "))
	}

	cfg.Log.WithFields(logrus.Fields{
		"format":  cfg.Format,
		"sources": len(sources),
	}).Info("Parsing input reports")

	var (
		collections []C
		owners      []int // source index of each collection
	)
	for i, src := range sources {
		// Check context cancellation
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		parsed, err := adapter.Parse(src)
		if err != nil {
			return nil, err
		}
		collections = append(collections, parsed...)
		for range parsed {
			owners = append(owners, i)
		}
	}

	var transitions []merge.Transition
	merger := merge.New(cfg.Log, merge.WithTransitionHook(func(tr merge.Transition) {
		// A file can hold several collections; changes point at the file.
		tr.Source = owners[tr.Source]
		transitions = append(transitions, tr)
	}))
	merged := fold(merger, collections)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := adapter.Write(output, merged); err != nil {
		return nil, err
	}

	cfg.Log.WithField("output", output).Info("Merged report written")

	return &Result{
		Sources: sources,
		Output:  output,
		Summary: summarize(merged, sources, output, classify.Changes(transitions)),
	}, nil
}

// Discover expands the inputs into the ordered list of report files.
// Files are kept as given; directories are walked in lexical order and only files matching
// pattern are kept. The output file is never picked up from a directory.
func Discover(ctx context.Context, fs afero.Fs, inputs []string, pattern, output string) ([]string, error) {
	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	matchPath := strings.Contains(pattern, "/")

	var sources []string
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := fs.Stat(input)
		if err != nil {
			return nil, fmt.Errorf("failed to read input %s: %w", input, err)
		}
		if !info.IsDir() {
			sources = append(sources, input)
			continue
		}

		err = afero.Walk(fs, input, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() || samePath(path, output) {
				return nil
			}

			name := fi.Name()
			if matchPath {
				rel, err := filepath.Rel(input, path)
				if err != nil {
					return err
				}
				name = filepath.ToSlash(rel)
			}
			if matcher.Match(name) {
				sources = append(sources, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk input directory %s: %w", input, err)
		}
	}

	return sources, nil
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func outputPath(cfg *Config, defaultName string) (string, error) {
	name := cfg.OutputName
	if name == "" {
		name = defaultName
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("output name %q must be a file name, use the output directory to place it", name)
	}

	dir := cfg.OutDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve working directory: %w", err)
		}
		dir = wd
	}

	return filepath.Join(dir, name), nil
}

func defaultPattern(format model.Format) string {
	if format == model.FormatHTML {
		return DefaultHTMLPattern
	}
	return DefaultJUnitPattern
}
