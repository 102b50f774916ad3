package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/soyeahso/sipdash/internal/config"
	"github.com/soyeahso/sipdash/internal/hub"
	"github.com/soyeahso/sipdash/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sipdash status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sipdash %s (commit %s)\n\n", version.Version, version.Commit)

			// Show paths
			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			// Load config
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:  not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "API:     %s timeout=%s\n", cfg.API.BaseURL, cfg.API.Timeout())
			for _, h := range []struct{ name, path string }{{"SIP", cfg.Hubs.SIPPath}, {"Chat", cfg.Hubs.ChatPath}} {
				endpoint, err := hub.Endpoint(cfg.API.BaseURL, h.path)
				if err != nil {
					endpoint = "invalid: " + err.Error()
				}
				fmt.Fprintf(out, "%-8s %s\n", h.name+":", endpoint)
			}
			delays := make([]string, 0, len(cfg.Hubs.ReconnectDelaysMs))
			for _, d := range cfg.Hubs.ReconnectDelays() {
				delays = append(delays, d.String())
			}
			fmt.Fprintf(out, "Retry:   connect=%d×%s reconnect=%s\n",
				cfg.Connect.MaxAttempts, cfg.Connect.BaseDelay(), strings.Join(delays, ","))

			statePath := "-"
			if cfg.State.Store != "memory" {
				statePath = paths.StatePath(cfg.State)
			}
			fmt.Fprintf(out, "State:   store=%s path=%s\n", cfg.State.Store, statePath)

			if cfg.API.Token != "" {
				fmt.Fprintf(out, "Token:   from config, %s\n", describeToken(cfg.API.Token, time.Now()))
			}
			if cfg.Metrics.Addr != "" {
				fmt.Fprintf(out, "Metrics: %s\n", cfg.Metrics.Addr)
			}

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
