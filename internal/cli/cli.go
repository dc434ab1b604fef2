package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/amirbrooks/tasker-recall/internal/config"
	"github.com/amirbrooks/tasker-recall/internal/picker"
	"github.com/amirbrooks/tasker-recall/internal/store"
)

// Exit codes
const (
	ExitOK       = 0
	ExitUsage    = 2
	ExitNotFound = 3
	ExitInternal = 10
)

// usageError marks bad invocations so they map to ExitUsage.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// app carries everything a command needs. Tests replace the filesystem,
// clock, random source and picker.
type app struct {
	stdout io.Writer
	stderr io.Writer

	fs     afero.Fs
	home   string
	now    func() time.Time
	rng    *rand.Rand
	picker store.Picker

	cfgFile    string
	verbose    bool
	jsonOut    bool
	skipDotenv bool

	cfg    *config.Config
	log    *slog.Logger
	styles styles
}

type option func(*app)

func newApp(stdout, stderr io.Writer, opts ...option) *app {
	a := &app{stdout: stdout, stderr: stderr, styles: newStyles(stdout)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes the recall command line and returns the process exit code.
func Run(args []string) int {
	return newApp(os.Stdout, os.Stderr).run(args)
}

func (a *app) run(args []string) int {
	root := a.rootCommand()
	if args == nil {
		// cobra falls back to os.Args on nil
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	cmd, err := root.ExecuteC()
	if err == nil {
		return ExitOK
	}
	name := root.Name()
	if cmd != nil {
		name = cmd.Name()
	}
	return a.report(name, err)
}

// report prints err the way every command does and picks the exit code.
func (a *app) report(name string, err error) int {
	switch {
	case errors.Is(err, store.ErrEmptyLog):
		fmt.Fprintln(a.stderr, err)
		return ExitOK
	case errors.Is(err, store.ErrNoStorage):
		fmt.Fprintf(a.stderr, "%s: %v\n(run `recall init` to create the task directory)\n", name, err)
		return ExitInternal
	}
	fmt.Fprintf(a.stderr, "%s: %v\n", name, err)

	var ue usageError
	switch {
	case errors.As(err, &ue), errors.Is(err, config.ErrInvalid), errors.Is(err, store.ErrInvalid):
		return ExitUsage
	case errors.Is(err, store.ErrNotFound):
		return ExitNotFound
	default:
		return ExitInternal
	}
}

// setup loads the configuration and logger before any command runs.
func (a *app) setup() error {
	cfg, err := config.Load(config.Options{File: a.cfgFile, Fs: a.fs, Home: a.home, SkipDotenv: a.skipDotenv})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.verbose = a.verbose || cfg.Verbose

	level := charmlog.WarnLevel
	if a.verbose {
		level = charmlog.DebugLevel
	}
	a.log = slog.New(charmlog.NewWithOptions(a.stderr, charmlog.Options{
		ReportTimestamp: false,
		Prefix:          "recall",
		Level:           level,
	}))
	if cfg.File != "" {
		a.log.Debug("using config file", "path", cfg.File)
	}
	return nil
}

func (a *app) openStore() (*store.Store, error) {
	opts := []store.Option{
		store.WithLogger(a.log),
		store.WithWeighting(store.Weighting(a.cfg.Weighting)),
	}
	if a.fs != nil {
		opts = append(opts, store.WithFs(a.fs))
	}
	if a.now != nil {
		opts = append(opts, store.WithClock(a.now))
	}
	if a.rng != nil {
		opts = append(opts, store.WithRand(a.rng))
	}
	if a.picker != nil {
		opts = append(opts, store.WithPicker(a.picker))
	} else {
		opts = append(opts, store.WithPicker(picker.New(picker.Options{Height: a.cfg.PickerHeight})))
	}
	return store.Open(a.cfg.TaskPath, opts...)
}

// withStore opens the store, creating any missing documents, runs fn and
// always closes it. A failed Close is reported alongside any error from fn.
func (a *app) withStore(fn func(*store.Store) error) (err error) {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("save: %w", cerr))
		}
	}()
	return fn(s)
}

func wrapArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
