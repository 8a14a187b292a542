package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"atracker/internal/config"
	"atracker/internal/store"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "atracker",
		Short: "Foreground window activity tracker",
		Long: `atracker samples the focused window every few seconds, stores one event
per uninterrupted stretch of use, and reports daily summaries, timelines
and category totals over a local HTTP API, the terminal or exported files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default "+config.ConfigPath()+")")

	root.AddCommand(
		newStartCmd(opts),
		newStatusCmd(opts),
		newStopCmd(opts),
		newPauseCmd(opts),
		newResumeCmd(opts),
		newSummaryCmd(opts),
		newExportCmd(opts),
		newPruneCmd(opts),
		newCategoriesCmd(opts),
		newTopCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads and validates the config file. A missing file yields the
// defaults.
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(o.path()).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (o *options) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.ConfigPath()
}

// openStore opens the event database named by cfg for a one-shot command.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.OpenWithOptions(cfg.Storage.Path, store.Options{
		BusyTimeout: cfg.Storage.BusyTimeout(),
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// commandContext bounds a one-shot command.
func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "atracker %s (built %s)\n", Version, BuildTime)
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.path())
			if err != nil {
				return err
			}
			data, err := config.Encode(cfg, filepath.Ext(opts.path()))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.path())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			problems := config.Check(cfg)
			for _, w := range problems.Warnings() {
				fmt.Fprintf(out, "warning: %s\n", w.Error())
			}
			if problems.HasErrors() {
				for _, e := range problems.Errors() {
					fmt.Fprintf(out, "error: %s\n", e.Error())
				}
				return fmt.Errorf("%s: %d error(s)", opts.path(), len(problems.Errors()))
			}
			fmt.Fprintf(out, "%s: ok\n", opts.path())
			return nil
		},
	}

	cfgCmd.AddCommand(show, check)
	return cfgCmd
}
