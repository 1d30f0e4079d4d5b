// Package cli implements the lexideck CLI commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/lexideck/internal/clock"
	"github.com/conorfennell/lexideck/internal/config"
	"github.com/conorfennell/lexideck/internal/queue"
	"github.com/conorfennell/lexideck/internal/srs"
	"github.com/conorfennell/lexideck/internal/storage"
	"github.com/conorfennell/lexideck/internal/sync"
)

var (
	cfgFile string
	cfg     config.Config
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "lexideck",
	Short:         "Spaced repetition for language decks",
	Long:          "Study vocabulary, grammar and verse cards written in markdown, scheduled with SM-2.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	RootCmd.PersistentFlags().StringP("db", "d", "", "Database path (default lexideck.db)")
	RootCmd.PersistentFlags().String("repos-dir", "", "Directory for git source checkouts (default repos)")
	RootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
}

// Execute runs the root command and prints any error to stderr.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// app bundles the collaborators built from the loaded config.
type app struct {
	db       *storage.DB
	alg      *srs.Algorithm
	builder  *queue.Builder
	settings queue.Settings
	syncer   *sync.Syncer
	clock    clock.Clock
}

func openApp(c config.Config, clk clock.Clock) (*app, error) {
	params, err := c.Params()
	if err != nil {
		return nil, err
	}
	alg, err := srs.New(params)
	if err != nil {
		return nil, err
	}
	settings, err := c.Settings()
	if err != nil {
		return nil, err
	}
	inter, err := c.Interleaver()
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(c.DB)
	if err != nil {
		return nil, err
	}
	slog.Debug("database opened", "path", c.DB)

	return &app{
		db:  db,
		alg: alg,
		builder: queue.NewBuilder(db, queue.BuilderConfig{
			Clock:          clk,
			Interleaver:    inter,
			LeechThreshold: params.LeechThreshold,
		}),
		settings: settings,
		syncer:   sync.New(db, c.ReposDir, clk),
		clock:    clk,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
