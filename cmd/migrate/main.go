package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/odyssey-erp/crediario/internal/app"
	"github.com/odyssey-erp/crediario/internal/platform/migrations"
)

// migrator is the subset of migrations.Migrator the commands drive.
type migrator interface {
	Up() error
	Down(n int) error
	Version() (uint, bool, error)
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	m, err := migrations.New(cfg.PGDSN, logger)
	if err != nil {
		logger.Error("open migrator", slog.Any("error", err))
		os.Exit(1)
	}
	code := run(m, os.Args[1:], os.Stdout, os.Stderr)
	if err := m.Close(); err != nil {
		logger.Warn("migrator close", slog.Any("error", err))
	}
	os.Exit(code)
}

func run(m migrator, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: migrate up | down N | version")
		return 2
	}
	switch args[0] {
	case "up":
		if err := m.Up(); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
	case "down":
		if len(args) != 2 {
			_, _ = fmt.Fprintln(stderr, "usage: migrate down N")
			return 2
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			_, _ = fmt.Fprintf(stderr, "down: invalid step count %q\n", args[1])
			return 2
		}
		if err := m.Down(n); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
	case "version":
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		return 2
	}

	version, dirty, err := m.Version()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "version %d dirty=%t\n", version, dirty)
	return 0
}
