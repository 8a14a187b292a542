package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"atracker/internal/bundle"
	"atracker/internal/config"
	"atracker/internal/store"
	"atracker/internal/timefmt"
)

func newCategoriesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cat"},
		Short:   "List, import and export categories and filter rules",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := commandContext(cmd, cfg.Tracking.StoreTimeout())
			defer cancel()
			cats, err := st.Categories(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range cats {
				fmt.Fprintf(out, "%3d  %-18s %-8s app=%q title=%q", c.Position, c.Name, c.Color, c.AppPattern, c.TitlePattern)
				if c.DailyGoalSecs > 0 {
					fmt.Fprintf(out, " goal=%s", timefmt.FormatDuration(float64(c.DailyGoalSecs)))
				}
				if c.DailyLimitSecs > 0 {
					fmt.Fprintf(out, " limit=%s", timefmt.FormatDuration(float64(c.DailyLimitSecs)))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	export := &cobra.Command{
		Use:   "export <file>",
		Short: "Write categories and filter rules to a JSON bundle (- for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			deviceID, err := store.LoadOrCreateDeviceID(config.DataDir())
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cfg.Tracking.StoreTimeout())
			defer cancel()
			b, err := bundle.Export(ctx, st, deviceID, time.Now())
			if err != nil {
				return err
			}

			if args[0] == "-" {
				return bundle.Write(cmd.OutOrStdout(), b)
			}
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("create %s: %w", args[0], err)
			}
			if err := bundle.Write(f, b); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d categories and %d filter rules to %s\n",
				len(b.Categories), len(b.Filters), args[0])
			return nil
		},
	}

	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace categories (and filter rules, when present) from a JSON bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}
			b, err := bundle.Read(r)
			if err != nil {
				return err
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := commandContext(cmd, cfg.Tracking.StoreTimeout())
			defer cancel()
			res, err := bundle.Import(ctx, st, b)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("imported %d categories", res.Categories)
			if res.FiltersSet {
				msg += fmt.Sprintf(" and %d filter rules", res.Filters)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	cmd.AddCommand(list, export, imp)
	return cmd
}
