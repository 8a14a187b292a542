package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"atracker/internal/api"
	"atracker/internal/config"
	"atracker/internal/daemon"
	"atracker/internal/tui"
)

func newTopCmd(opts *options) *cobra.Command {
	var (
		interval time.Duration
		addr     string
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live dashboard of the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal(cmd.OutOrStdout()) {
				return fmt.Errorf("top needs an interactive terminal")
			}
			if addr == "" {
				addr = daemonAddr(opts)
			}
			client := api.NewClient(api.BaseURL(addr), apiTimeout)
			return tui.Run(cmd.Context(), tui.APISource{Client: client}, interval)
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "n", 2*time.Second, "refresh interval")
	cmd.Flags().StringVar(&addr, "addr", "", "API address (default from the running daemon or config)")
	return cmd
}

// daemonAddr prefers the address the running daemon recorded, then the
// config file, then the built-in default.
func daemonAddr(opts *options) string {
	if st, err := daemon.NewManager(config.DataDir()).ReadState(); err == nil && st.Addr != "" {
		return st.Addr
	}
	if cfg, err := opts.loadConfig(); err == nil {
		return cfg.Addr()
	}
	return config.DefaultConfig().Addr()
}
