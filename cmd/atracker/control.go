package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"atracker/internal/activity"
	"atracker/internal/api"
	"atracker/internal/config"
	"atracker/internal/daemon"
	"atracker/internal/timefmt"
)

const (
	apiTimeout  = 3 * time.Second
	stopTimeout = 10 * time.Second
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and the current window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			mgr := daemon.NewManager(config.DataDir())
			st, err := mgr.Status()
			if err != nil {
				return err
			}
			if !st.Running {
				fmt.Fprintln(out, "atracker is not running")
				return nil
			}

			fmt.Fprintf(out, "Running:   pid %d, up %s\n", st.PID, st.Uptime)
			if st.Version != "" {
				fmt.Fprintf(out, "Version:   %s\n", st.Version)
			}
			if st.DBPath != "" {
				fmt.Fprintf(out, "Database:  %s\n", st.DBPath)
			}

			addr := st.Addr
			if addr == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				addr = cfg.Addr()
			}
			fmt.Fprintf(out, "API:       %s\n", api.BaseURL(addr))

			ctx, cancel := commandContext(cmd, apiTimeout)
			defer cancel()
			resp, err := api.NewClient(api.BaseURL(addr), apiTimeout).Status(ctx)
			if err != nil {
				fmt.Fprintf(out, "Health:    unreachable (%v)\n", err)
				return nil
			}
			printStatus(out, resp)
			return nil
		},
	}
}

func printStatus(out io.Writer, resp *api.StatusResponse) {
	fmt.Fprintf(out, "Health:    %s\n", resp.Status)
	for name, c := range resp.Components {
		fmt.Fprintf(out, "  %-10s %s", name, c.Status)
		if c.Message != "" {
			fmt.Fprintf(out, " (%s)", c.Message)
		}
		fmt.Fprintln(out)
	}

	switch {
	case resp.Paused && resp.PausedUntil != nil:
		fmt.Fprintf(out, "Tracking:  paused until %s\n", resp.PausedUntil.Local().Format("15:04"))
	case resp.Paused:
		fmt.Fprintln(out, "Tracking:  paused")
	default:
		fmt.Fprintln(out, "Tracking:  active")
	}

	seg := resp.Current
	if seg == nil {
		return
	}
	elapsed := timefmt.FormatDuration(seg.Elapsed(resp.Timestamp))
	switch {
	case seg.IsSentinel():
		fmt.Fprintf(out, "Now:       %s for %s\n", seg.Title, elapsed)
	case seg.App == "":
		fmt.Fprintf(out, "Now:       no window for %s\n", elapsed)
	default:
		fmt.Fprintf(out, "Now:       %s - %s for %s\n", seg.App, seg.Title, elapsed)
	}
}

func newStopCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := daemon.NewManager(config.DataDir())
			pid, _ := mgr.ReadPID()
			if err := mgr.SignalStop(); err != nil {
				if errors.Is(err, daemon.ErrNotRunning) {
					mgr.Cleanup()
				}
				return err
			}
			if err := mgr.WaitForStop(stopTimeout); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "atracker stopped (pid %d)\n", pid)
			return nil
		},
	}
}

func newPauseCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pause [minutes]",
		Short: "Pause tracking, indefinitely when no duration is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 0 {
					return fmt.Errorf("invalid minutes %q", args[0])
				}
				minutes = n
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
			state, err := activity.NewPauser(st, nil).Pause(ctx, time.Duration(minutes)*time.Minute)
			if err != nil {
				return err
			}
			if state.Indefinite {
				fmt.Fprintln(cmd.OutOrStdout(), "Tracking paused until resumed")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Tracking paused until %s\n", state.Until.Local().Format("15:04"))
			}
			return nil
		},
	}
}

func newResumeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume tracking",
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
			if err := activity.NewPauser(st, nil).Resume(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tracking resumed")
			return nil
		},
	}
}
