package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/sipdash/internal/auth"
	"github.com/soyeahso/sipdash/internal/config"
	"github.com/soyeahso/sipdash/internal/persist"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored bearer token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <token>",
		Short: "Store the bearer token used for REST and hub requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTokens(cmd.Context(), func(ctx context.Context, s *auth.KVStore) error {
				if err := s.SetToken(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Token stored")
				if exp, ok := auth.Expiry(args[0]); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "Expires %s\n", exp.Format(time.RFC3339))
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTokens(cmd.Context(), func(ctx context.Context, s *auth.KVStore) error {
				if err := s.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Token cleared")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Describe the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTokens(cmd.Context(), func(ctx context.Context, s *auth.KVStore) error {
				tok, err := s.Token(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), describeToken(tok, time.Now()))
				return nil
			})
		},
	})

	return cmd
}

// withTokens opens only the state store, so token commands work without a
// reachable backend.
func withTokens(ctx context.Context, fn func(ctx context.Context, s *auth.KVStore) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return err
	}
	if err := paths.EnsureDirs(); err != nil {
		return err
	}
	state, err := persist.Open(cfg.State, paths, log)
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}
	defer state.Close()
	return fn(ctx, auth.NewKVStore(state))
}

func describeToken(tok string, now time.Time) string {
	if tok == "" {
		return "no token stored"
	}
	exp, ok := auth.Expiry(tok)
	switch {
	case !ok:
		return "token stored (no expiry)"
	case now.After(exp):
		return fmt.Sprintf("token expired at %s", exp.Format(time.RFC3339))
	default:
		return fmt.Sprintf("token valid until %s", exp.Format(time.RFC3339))
	}
}
