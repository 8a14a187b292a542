package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"atracker/internal/activity"
	"atracker/internal/aggregate"
	"atracker/internal/timefmt"
)

const (
	queryTimeout = 30 * time.Second
	summaryApps  = 15
	formatYAML   = "yaml"
)

func newSummaryCmd(opts *options) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print category totals and the top apps of a day",
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

			engine := aggregate.New(st, &activity.Current{})
			day, err := timefmt.ParseDay(date, engine.Now(), engine.Location())
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, queryTimeout)
			defer cancel()
			rep, err := loadReport(ctx, engine, day)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rep.render(out, isTerminal(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "day to summarize, YYYY-MM-DD (default today)")
	return cmd
}

type report struct {
	day    time.Time
	totals []aggregate.CategoryTotal
	apps   []aggregate.Group
	focus  aggregate.FocusReport
}

func loadReport(ctx context.Context, engine *aggregate.Engine, day time.Time) (*report, error) {
	rep := &report{day: day}
	var err error
	if rep.totals, err = engine.CategoryTotals(ctx, day); err != nil {
		return nil, err
	}
	if rep.apps, err = engine.AppSummary(ctx, day); err != nil {
		return nil, err
	}
	if rep.focus, err = engine.Focus(ctx, day); err != nil {
		return nil, err
	}
	return rep, nil
}

var (
	headStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BE9FD"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4"))
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
	alertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)
)

// render writes the report. Styled output adds colors and category swatches;
// plain output is stable for pipes.
func (r *report) render(w io.Writer, styled bool) {
	paint := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	fmt.Fprintln(w, paint(headStyle, "Summary for "+r.day.Format(timefmt.DayLayout)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, paint(headStyle, fmt.Sprintf("%-22s %10s  %s", "CATEGORY", "TIME", "STATUS")))
	shown := 0
	for _, t := range r.totals {
		if t.TotalSecs == 0 && t.DailyGoalSecs == 0 {
			continue
		}
		shown++
		name := fmt.Sprintf("%-20s", truncate(t.Name, 20))
		if styled && t.Color != "" {
			name = lipgloss.NewStyle().Foreground(lipgloss.Color(t.Color)).Render("█") + " " + name
		} else {
			name = "  " + name
		}
		status := ""
		switch {
		case t.OverLimit:
			status = paint(alertStyle, "over limit "+timefmt.FormatDuration(float64(t.DailyLimitSecs)))
		case t.GoalMet:
			status = paint(goodStyle, "goal met")
		case t.DailyGoalSecs > 0:
			status = paint(dimStyle, "goal "+timefmt.FormatDuration(float64(t.DailyGoalSecs)))
		}
		fmt.Fprintf(w, "%s %10s  %s\n", name, t.TotalFormatted, status)
	}
	if shown == 0 {
		fmt.Fprintln(w, paint(dimStyle, "  no activity"))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, paint(headStyle, fmt.Sprintf("%-24s %10s  %s", "APP", "TIME", "CATEGORY")))
	listed, more := 0, 0
	for _, g := range r.apps {
		if activity.IsSentinel(g.App) {
			continue
		}
		if listed == summaryApps {
			more++
			continue
		}
		listed++
		app := g.App
		if g.Live {
			app += " *"
		}
		fmt.Fprintf(w, "  %-22s %10s  %s\n", truncate(app, 22), g.TotalFormatted, paint(dimStyle, g.Category))
	}
	if more > 0 {
		fmt.Fprintln(w, paint(dimStyle, fmt.Sprintf("  ... %d more", more)))
	}
	fmt.Fprintln(w)

	focus := fmt.Sprintf("Focus: %d/100, %d switches", r.focus.Score, r.focus.Switches)
	if r.focus.LongestStreakApp != "" {
		focus += fmt.Sprintf(", longest streak %s in %s",
			timefmt.FormatDuration(r.focus.LongestStreakSecs), r.focus.LongestStreakApp)
	}
	fmt.Fprintln(w, focus)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newExportCmd(opts *options) *cobra.Command {
	var (
		start, end, format, outPath string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export persisted events as CSV, JSON lines or YAML",
		Long: `Export the events of the days from --start to --end, both inclusive.
Both default to today. The segment still open in a running daemon is not
included.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			switch format {
			case aggregate.FormatCSV, aggregate.FormatJSON, formatYAML:
			default:
				return fmt.Errorf("unsupported format %q (csv, json, yaml)", format)
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

			engine := aggregate.New(st, &activity.Current{})
			from, err := timefmt.ParseDay(start, engine.Now(), engine.Location())
			if err != nil {
				return err
			}
			to, err := timefmt.ParseDay(end, engine.Now(), engine.Location())
			if err != nil {
				return err
			}
			if to.Before(from) {
				return fmt.Errorf("end %s is before start %s", to.Format(timefmt.DayLayout), from.Format(timefmt.DayLayout))
			}
			_, until := timefmt.DayBounds(to, engine.Location())

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", outPath, err)
				}
				defer f.Close()
				w = f
			}

			ctx, cancel := commandContext(cmd, queryTimeout)
			defer cancel()
			n, err := exportEvents(ctx, engine, w, from, until, format)
			if err != nil {
				return err
			}
			if outPath != "" && outPath != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d events to %s\n", n, outPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&format, "format", aggregate.FormatCSV, "output format: csv, json or yaml")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

// exportRecord is the YAML shape of one event.
type exportRecord struct {
	ID           string    `yaml:"id"`
	DeviceID     string    `yaml:"device_id"`
	Start        time.Time `yaml:"start"`
	End          time.Time `yaml:"end"`
	App          string    `yaml:"app"`
	Title        string    `yaml:"title"`
	PID          int       `yaml:"pid"`
	DurationSecs float64   `yaml:"duration_secs"`
	IsIdle       bool      `yaml:"is_idle"`
	Category     string    `yaml:"category"`
}

func exportEvents(ctx context.Context, engine *aggregate.Engine, w io.Writer, start, end time.Time, format string) (int, error) {
	if format != formatYAML {
		return engine.Export(ctx, w, start, end, format)
	}

	events, err := engine.ExportRange(ctx, start, end)
	if err != nil {
		return 0, err
	}
	records := make([]exportRecord, 0, len(events))
	for _, ev := range events {
		records = append(records, exportRecord{
			ID:           ev.ID,
			DeviceID:     ev.DeviceID,
			Start:        ev.Start,
			End:          ev.End,
			App:          ev.App,
			Title:        ev.Title,
			PID:          ev.PID,
			DurationSecs: ev.DurationSecs,
			IsIdle:       ev.IsIdle,
			Category:     ev.Category,
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return 0, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("flush yaml: %w", err)
	}
	return len(records), nil
}

func newPruneCmd(opts *options) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete events older than a number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
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

			ctx, cancel := commandContext(cmd, queryTimeout)
			defer cancel()
			cutoff := time.Now().AddDate(0, 0, -days)
			n, err := st.PruneEvents(ctx, cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d events older than %s\n", n, cutoff.Format(timefmt.DayLayout))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "keep this many days of events")
	_ = cmd.MarkFlagRequired("days")
	return cmd
}
