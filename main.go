package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-circulation/config"
	"library-circulation/library"
)

// app holds what every command shares. The manager is opened on first use so
// commands that never touch the database don't create one.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	mgr    *library.LibraryManager

	dbPath   string
	jsonOut  bool
	out      io.Writer
	terminal bool
}

func (a *app) manager() (*library.LibraryManager, error) {
	if a.mgr != nil {
		return a.mgr, nil
	}
	if a.dbPath != "" {
		a.cfg.Database.Path = a.dbPath
	}
	mgr, err := library.NewLibraryManager(a.cfg.Database.Path, library.Options{
		Database: library.DatabaseOptions{
			BusyTimeout:    a.cfg.Database.BusyTimeout,
			RetryAttempts:  a.cfg.Database.RetryAttempts,
			RetryBaseDelay: a.cfg.Database.RetryBaseDelay,
		},
		Engine: library.EngineOptions{
			LoanPeriod: a.cfg.Circulation.LoanPeriod(),
			FeePerDay:  library.Money(a.cfg.Circulation.FeePerDayCents),
		},
		Logger: a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.cfg.Database.Path, err)
	}
	a.mgr = mgr
	return mgr, nil
}

func (a *app) close() {
	if a.mgr != nil {
		a.mgr.Close()
	}
}

// emit writes v as JSON when output is not a terminal (or --json is set), and
// calls table otherwise.
func (a *app) emit(v any, table func()) error {
	if a.jsonOut || !a.terminal {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	table()
	return nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{out: os.Stdout, terminal: term.IsTerminal(int(os.Stdout.Fd()))}

	root := &cobra.Command{
		Use:           "library",
		Short:         "Library catalog and circulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = config.NewLogger(cfg.Log, os.Stderr)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database file (overrides database.path)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "always print JSON")

	root.AddCommand(
		newServeCmd(a),
		newHashKeyCmd(a),
		newBookCmd(a),
		newMemberCmd(a),
		newCheckoutCmd(a),
		newReturnCmd(a),
		newOverdueCmd(a),
		newStatsCmd(a),
	)
	return root, a
}

func main() {
	root, a := newRootCmd()
	err := root.Execute()
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes caller mistakes (2) from refusals (3) and failures (1).
func exitCode(err error) int {
	switch library.KindOf(err) {
	case library.KindValidation, library.KindNotFound:
		return 2
	case library.KindConflict, library.KindUnavailable:
		return 3
	default:
		return 1
	}
}

// readSecret reads a secret with masking when stdin is a terminal.
func readSecret(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
