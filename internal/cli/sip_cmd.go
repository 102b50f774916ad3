package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/soyeahso/sipdash/internal/domain"
	"github.com/spf13/cobra"
)

// withApp runs fn against a wired app whose context ends on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account"},
		Short:   "List and manage SIP accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List SIP accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				accounts := a.sip.FetchAccounts(ctx)
				if accounts == nil && a.sip.Error() != "" {
					return storeError(a.sip, "Failed to fetch accounts")
				}
				out := cmd.OutOrStdout()
				if len(accounts) == 0 {
					fmt.Fprintln(out, "(no accounts)")
					return nil
				}
				for _, acc := range accounts {
					agent := "-"
					if acc.AgentConfigID != nil {
						agent = strconv.FormatInt(*acc.AgentConfigID, 10)
					}
					fmt.Fprintf(out, "  %-12s %-20s %-24s active=%-5v agent=%s calls=%d\n",
						acc.AccountID, acc.Username, acc.Domain, acc.IsActive, agent, acc.CallCount)
				}
				return nil
			})
		},
	})

	var req domain.CreateAccountRequest
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a new SIP account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				acc := a.sip.RegisterAccount(ctx, req)
				if acc == nil {
					return storeError(a.sip, "Failed to register account")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s@%s)\n", acc.AccountID, acc.Username, acc.Domain)
				return nil
			})
		},
	}
	register.Flags().StringVar(&req.Username, "username", "", "SIP username")
	register.Flags().StringVar(&req.Password, "password", "", "SIP password")
	register.Flags().StringVar(&req.Domain, "domain", "", "SIP domain")
	register.Flags().StringVar(&req.RegistrarURI, "registrar", "", "registrar URI")
	register.Flags().Int64Var(&req.AgentConfigID, "agent", 0, "agent configuration id")
	register.MarkFlagRequired("username")
	register.MarkFlagRequired("domain")
	cmd.AddCommand(register)

	cmd.AddCommand(&cobra.Command{
		Use:   "assign-agent <account-id> <agent-id>",
		Short: "Assign the agent that answers an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				if a.sip.UpdateAccountAgent(ctx, args[0], agentID) == nil {
					return storeError(a.sip, "Failed to update account agent")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Account %s now uses agent %d\n", args[0], agentID)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <account-id>",
		Short: "Delete a SIP account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if !a.sip.DeleteAccount(ctx, args[0]) {
					return storeError(a.sip, "Failed to delete account")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reregister",
		Short: "Re-register every SIP account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if !a.sip.ReRegisterAllAccounts(ctx) {
					return storeError(a.sip, "Failed to re-register accounts")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Re-registration requested")
				return nil
			})
		},
	})

	return cmd
}

func newCallsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calls",
		Aliases: []string{"call"},
		Short:   "List and control SIP calls",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if a.sip.FetchCalls(ctx) == nil && a.sip.Error() != "" {
					return storeError(a.sip, "Failed to fetch calls")
				}
				out := cmd.OutOrStdout()
				calls := a.sip.ActiveCalls()
				if len(calls) == 0 {
					fmt.Fprintln(out, "(no active calls)")
					return nil
				}
				for _, c := range calls {
					fmt.Fprintf(out, "  %-8d %-12s account=%d remote=%s\n", c.CallID, c.Status, c.AccountID, c.RemoteURI)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "make <account-id> <destination>",
		Short: "Place an outbound call",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				c := a.sip.MakeCall(ctx, args[0], args[1])
				if c == nil {
					return storeError(a.sip, "Failed to make call")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Call %d %s\n", c.CallID, c.Status)
				if c.WssURL != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Media: %s\n", c.WssURL)
				}
				return nil
			})
		},
	})

	actions := []struct {
		use, short, fallback string
		run                  func(ctx context.Context, a *app, id int64) bool
	}{
		{"hangup", "Hang up a call", "Failed to hang up call",
			func(ctx context.Context, a *app, id int64) bool { return a.sip.HangupCall(ctx, id) }},
		{"hold", "Put a call on hold", "Failed to hold call",
			func(ctx context.Context, a *app, id int64) bool { return a.sip.HoldCall(ctx, id) }},
		{"unhold", "Resume a held call", "Failed to resume call",
			func(ctx context.Context, a *app, id int64) bool { return a.sip.UnholdCall(ctx, id) }},
		{"mute", "Mute a call", "Failed to mute call",
			func(ctx context.Context, a *app, id int64) bool { return a.sip.MuteCall(ctx, id) }},
		{"unmute", "Unmute a call", "Failed to unmute call",
			func(ctx context.Context, a *app, id int64) bool { return a.sip.UnmuteCall(ctx, id) }},
	}
	for _, act := range actions {
		cmd.AddCommand(&cobra.Command{
			Use:   act.use + " <call-id>",
			Short: act.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return withApp(func(ctx context.Context, a *app) error {
					if !act.run(ctx, a, id) {
						return storeError(a.sip, act.fallback)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: call %d\n", act.use, id)
					return nil
				})
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "dtmf <call-id> <digits>",
		Short: "Send DTMF digits on a call",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				if !a.sip.SendDTMF(ctx, id, args[1]) {
					return storeError(a.sip, "Failed to send DTMF")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sent %q to call %d\n", args[1], id)
				return nil
			})
		},
	})

	return cmd
}
