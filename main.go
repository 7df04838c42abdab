package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/veresia/internal/api"
	"github.com/sadopc/veresia/internal/config"
	"github.com/sadopc/veresia/internal/ledger"
	"github.com/sadopc/veresia/internal/logger"
	"github.com/sadopc/veresia/internal/pgstore"
	"github.com/sadopc/veresia/internal/pipeline"
	"github.com/sadopc/veresia/internal/recognize"
	"github.com/sadopc/veresia/internal/store"
	"github.com/sadopc/veresia/internal/tui"
)

const usage = `usage: veresia [command]

commands:
  (none)         open the drawing canvas
  serve          run the HTTP API
  lookup <name>  print every entry for name and its total
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "":
		err = runTUI(cfg)
	case "serve":
		err = runServe(cfg)
	case "lookup":
		if len(args) < 2 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		err = runLookup(cfg, args[1], os.Stdout)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newSaver(cfg *config.Config, repo pipeline.Repository) (*pipeline.Saver, error) {
	r, err := recognize.New(cfg)
	if err != nil {
		return nil, err
	}
	saver := pipeline.NewSaver(repo, r)
	saver.RecognizeTimeout = cfg.RecognizeTimeout
	return saver, nil
}

// runTUI opens the canvas. The terminal is taken, so logs go to a file.
func runTUI(cfg *config.Config) error {
	log, closer, err := logger.NewFile(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(log)

	s, err := store.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	saver, err := newSaver(cfg, s)
	if err != nil {
		return err
	}
	log.Info("starting canvas", "db", cfg.DatabasePath, "recognizer", saver.Recognizer().Name())

	ctx := logger.ToContext(context.Background(), log)
	app := tui.NewApp(ctx, s, saver, cfg)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())

	_, err = p.Run()
	return err
}

// runServe runs the HTTP API until SIGINT or SIGTERM.
func runServe(cfg *config.Config) error {
	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	var repo api.Repository
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pg, err := pgstore.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		repo = pg
	default:
		s, err := store.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer s.Close()
		repo = s
	}

	saver, err := newSaver(cfg, repo)
	if err != nil {
		return err
	}
	log.Info("starting server", "db_driver", cfg.DBDriver, "recognizer", saver.Recognizer().Name())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ToContext(ctx, log)

	return api.New(cfg, repo, saver, log).Run(ctx)
}

// runLookup prints the entries recorded under exactly name.
func runLookup(cfg *config.Config, name string, w io.Writer) error {
	s, err := store.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	entries, err := s.ListEntriesByName(name)
	if err != nil {
		return err
	}
	total, err := s.SumByName(name)
	if err != nil {
		return err
	}
	currency := s.GetSettingOr("currency", "")

	if len(entries) == 0 {
		fmt.Fprintf(w, "No entries for %s\n", name)
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "— %s | %s | %s %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04"), e.Name, ledger.FormatAmount(e.Amount), currency)
	}
	fmt.Fprintf(w, "Total: %s %s\n", ledger.FormatAmount(total), currency)
	return nil
}
