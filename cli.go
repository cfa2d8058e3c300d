package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/nconklindev/mergeline/internal/config"
	"github.com/nconklindev/mergeline/internal/ingest"
	"github.com/nconklindev/mergeline/internal/types"
	"github.com/nconklindev/mergeline/internal/ui"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitLocked = 2
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

type options struct {
	configPath string
	pattern    string
	jsonOut    bool
	tui        bool
	logLevel   string
	noColor    bool
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFailed
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:   "mergeline [file|dir]",
		Short: "Merge spreadsheet and CSV exports into one append-only master dataset",
		Long: `mergeline ingests CSV, TSV, XLSX and XLS files into a master CSV dataset.
Headers are detected and normalized, new columns extend the schema, and rows
are upserted by primary key without ever overwriting a non-empty value.

With no argument the configured input directory is ingested.`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate(fmt.Sprintf("mergeline %s\ncommit: %s\nbuilt: %s\n", version, commit, date))

	flags := root.Flags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file (default "+config.DefaultFile+" if present)")
	flags.StringVar(&opts.pattern, "pattern", "", "glob selecting files inside a directory")
	flags.BoolVar(&opts.jsonOut, "json", false, "print the record or batch summary as JSON on stdout")
	flags.BoolVar(&opts.tui, "tui", false, "pick files interactively")
	flags.StringVar(&opts.logLevel, "log-level", "", "diagnostic log level (debug, info, warn, error)")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable coloured console output")
	return root
}

func run(ctx context.Context, opts options, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.pattern != "" {
		cfg.Ingest.Pattern = opts.pattern
	}
	if opts.noColor {
		cfg.Console.NoColor = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lock, err := acquireLock(cfg.Paths.LockPath)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	// Human output moves to stderr when stdout carries JSON, and is muted
	// while the TUI owns the terminal.
	consoleOut := stdout
	switch {
	case opts.tui:
		consoleOut = io.Discard
	case opts.jsonOut:
		consoleOut = stderr
	}

	a, err := newApp(cfg, consoleOut)
	if err != nil {
		return err
	}
	defer a.Close()

	target := cfg.Paths.InputDir
	if len(args) == 1 {
		target = args[0]
	}

	if opts.tui {
		return runTUI(ctx, a.engine, target, cfg.Ingest.Pattern, stdout)
	}

	info, err := os.Stat(target)
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}

	if !info.IsDir() {
		rec := a.engine.IngestFile(ctx, target)
		if opts.jsonOut {
			if err := writeJSON(stdout, rec); err != nil {
				return err
			}
		}
		if rec.Status == types.StatusFailed {
			return &exitError{code: exitFailed}
		}
		return nil
	}

	summary, err := a.engine.IngestDirectory(ctx, target, cfg.Ingest.Pattern, nil)
	if err != nil && !ingest.IsCancelled(err) {
		return err
	}
	if opts.jsonOut {
		if err := writeJSON(stdout, summary); err != nil {
			return err
		}
	}
	if ingest.IsCancelled(err) || ingest.Failed(summary) {
		return &exitError{code: exitFailed}
	}
	return nil
}

// acquireLock takes the single-writer lock or fails at once when another
// run holds it.
func acquireLock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, &exitError{
			code: exitLocked,
			err:  fmt.Errorf("another ingestion holds %s, try again when it finishes", path),
		}
	}
	return lock, nil
}

func runTUI(ctx context.Context, ing ui.Ingester, dir, pattern string, out io.Writer) error {
	info, err := os.Stat(dir)
	if err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	p := tea.NewProgram(ui.InitialModel(ctx, ing, abs, pattern),
		tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(ui.Model); ok && ingest.Failed(m.Summary()) {
		return &exitError{code: exitFailed}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
