// Package main is the entry point for the onefile CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/zytedata/onefile/internal/config"
	"github.com/zytedata/onefile/internal/logging"
	"github.com/zytedata/onefile/internal/model"
	"github.com/zytedata/onefile/internal/report"
	"github.com/zytedata/onefile/internal/runner"
)

const (
	exitSuccess = 0
	exitError   = 1
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	a := &app{
		fs:     afero.NewOsFs(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	os.Exit(a.run(os.Args[1:]))
}

// app holds the process dependencies so tests can swap them.
type app struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
}

// options holds the parsed CLI flags.
type options struct {
	configPath  string
	outDir      string
	outputName  string
	pattern     string
	logLevel    string
	jsonOutput  bool
	summaryJSON string
	summaryMD   string
	quiet       bool
	verbose     bool
	noColor     bool
	topN        int
}

func (a *app) run(args []string) int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(a.stderr, "Warning: failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitError
	}

	return exitSuccess
}

func (a *app) newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "onefile",
		Short:         "Merge JUnit XML or pytest-html reports into one report",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default: ./"+config.DefaultFile+" when present)")
	flags.StringVarP(&opts.outDir, "out", "o", "", "output directory (default: current directory)")
	flags.StringVar(&opts.outputName, "output-name", "", "merged report file name (default: junit.xml or report.html)")
	flags.StringVar(&opts.pattern, "pattern", "", "glob for files inside input directories (default: *.xml or *.html)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (default: $LOG_LEVEL or "+logging.DefaultLevel+")")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print the merge summary as JSON to stdout")
	flags.StringVar(&opts.summaryJSON, "summary-json", "", "also write the merge summary as JSON to this path")
	flags.StringVar(&opts.summaryMD, "summary-md", "", "also write the merge summary as Markdown to this path")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "do not print the terminal summary")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "list every source and changed outcome")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.IntVar(&opts.topN, "top", 5, "number of failures shown in the terminal summary")

	junitCmd := &cobra.Command{
		Use:   "junit [paths...]",
		Short: "Merge JUnit XML reports",
		Long: `Merge JUnit XML reports into a single junit.xml.

Inputs are files or directories, merged in the order given. Files inside
directories are matched against --pattern and merged in lexical order.
For a test seen in several reports, the report with the newest timestamp wins.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.merge(cmd.Context(), opts, model.FormatJUnit, args)
		},
	}

	htmlCmd := &cobra.Command{
		Use:   "html [paths...]",
		Short: "Merge pytest-html reports",
		Long: `Merge pytest-html reports into a single report.html.

Inputs are files or directories, merged in the order given. Files inside
directories are matched against --pattern and merged in lexical order.
For a test seen in several reports, the report with the newest generation date wins.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.merge(cmd.Context(), opts, model.FormatHTML, args)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the onefile version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "onefile %s\n", version)
		},
	}

	rootCmd.AddCommand(junitCmd, htmlCmd, versionCmd)

	return rootCmd
}

// settings resolves flags > config file > environment > defaults.
func (a *app) settings(opts *options) (*config.Config, error) {
	cfg, err := config.Load(a.fs, opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)

	override := func(field *string, value string) {
		if value != "" {
			*field = value
		}
	}
	override(&cfg.OutDir, opts.outDir)
	override(&cfg.Pattern, opts.pattern)
	override(&cfg.LogLevel, opts.logLevel)
	override(&cfg.JUnitName, opts.outputName)
	override(&cfg.HTMLName, opts.outputName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (a *app) merge(ctx context.Context, opts *options, format model.Format, inputs []string) error {
	cfg, err := a.settings(opts)
	if err != nil {
		return err
	}

	log, err := logging.New(a.stderr, cfg.LogLevel)
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx, &runner.Config{
		Format:     format,
		Inputs:     inputs,
		Pattern:    cfg.Pattern,
		OutDir:     cfg.OutDir,
		OutputName: cfg.OutputName(format),
		Fs:         a.fs,
		Log:        log,
	})
	if err != nil {
		return err
	}

	// Summary files are best effort; the merged report is already written
	if opts.summaryJSON != "" {
		if err := report.WriteJSON(a.fs, opts.summaryJSON, result.Summary); err != nil {
			fmt.Fprintf(a.stderr, "Warning: failed to write JSON summary: %v\n", err)
		}
	}
	if opts.summaryMD != "" {
		if err := report.WriteMarkdown(a.fs, opts.summaryMD, result.Summary); err != nil {
			fmt.Fprintf(a.stderr, "Warning: failed to write Markdown summary: %v\n", err)
		}
	}

	if opts.jsonOutput {
		data, err := report.MarshalJSON(result.Summary)
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		fmt.Fprintln(a.stdout, string(data))
		return nil
	}

	if opts.quiet {
		return nil
	}

	termCfg := report.DefaultTerminalConfig(a.stdout)
	termCfg.TopN = opts.topN
	termCfg.Verbose = opts.verbose
	termCfg.NoColor = opts.noColor
	if err := report.RenderTerminal(termCfg, result.Summary); err != nil {
		fmt.Fprintf(a.stderr, "Warning: failed to render terminal output: %v\n", err)
	}

	return nil
}
