package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/sipdash/internal/domain"
	"github.com/spf13/cobra"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "List and manage agent configurations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				agents := a.agents.FetchAgents(ctx)
				if agents == nil && a.agents.Error() != "" {
					return storeError(a.agents, "Failed to fetch agents")
				}
				out := cmd.OutOrStdout()
				if len(agents) == 0 {
					fmt.Fprintln(out, "(no agents)")
					return nil
				}
				selected := a.agents.SelectedAgentID()
				for _, ag := range agents {
					mark := " "
					if selected != nil && *selected == ag.ID {
						mark = "*"
					}
					fmt.Fprintf(out, "%s %-6d %-20s model=%-16s priority=%d enabled=%v chats=%d\n",
						mark, ag.ID, ag.Name, ag.LLM.Model, ag.Priority, ag.IsEnabled, ag.ChatCount)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [agent-id]",
		Short: "Show an agent (default: the selected one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				var (
					ag domain.AgentConfig
					ok bool
				)
				if len(args) == 1 {
					id, err := parseID(args[0])
					if err != nil {
						return err
					}
					resp := a.api.Agents().Get(ctx, id)
					if !resp.Success {
						return fmt.Errorf("%s", resp.Message("Failed to fetch agent"))
					}
					ag, ok = resp.Data, true
				} else {
					ag, ok = a.agents.SelectedAgent()
				}
				if !ok {
					return fmt.Errorf("no agent selected")
				}
				printAgent(cmd, ag)
				return nil
			})
		},
	})

	var (
		req    domain.CreateAgentRequest
		params []string
	)
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			for _, kv := range params {
				key, value, found := strings.Cut(kv, "=")
				if !found {
					return fmt.Errorf("parameter %q: expected key=value", kv)
				}
				if err := req.LLM.Parameters.Set(key, value); err != nil {
					return err
				}
			}
			return withApp(func(ctx context.Context, a *app) error {
				ag := a.agents.CreateAgent(ctx, req)
				if ag == nil {
					return storeError(a.agents, "Failed to create agent")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created agent %d (%s)\n", ag.ID, ag.Name)
				return nil
			})
		},
	}
	create.Flags().StringVar(&req.LLM.Model, "model", "", "LLM model name")
	create.Flags().StringVar(&req.LLM.OllamaEndpoint, "llm-endpoint", "", "LLM endpoint URL")
	create.Flags().StringVar(&req.Whisper.Endpoint, "whisper-endpoint", "", "speech-to-text endpoint")
	create.Flags().StringVar(&req.Whisper.Language, "language", "en", "speech-to-text language")
	create.Flags().StringVar(&req.Auralis.Endpoint, "tts-endpoint", "", "speech synthesis endpoint")
	create.Flags().IntVar(&req.Priority, "priority", 0, "routing priority")
	create.Flags().BoolVar(&req.IsEnabled, "enabled", true, "enable the agent")
	create.Flags().StringArrayVar(&params, "param", nil, "generation parameter key=value (repeatable)")
	create.MarkFlagRequired("model")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <agent-id>",
		Short: "Delete an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				if !a.agents.DeleteAgent(ctx, id) {
					return storeError(a.agents, "Failed to delete agent")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted agent %d\n", id)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "select [agent-id]",
		Short: "Select an agent; no argument clears the selection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id *int64
			if len(args) == 1 {
				v, err := parseID(args[0])
				if err != nil {
					return err
				}
				id = &v
			}
			return withApp(func(ctx context.Context, a *app) error {
				a.agents.SetSelectedAgentID(ctx, id)
				if err := a.agents.Save(ctx); err != nil {
					return err
				}
				if id == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Selection cleared")
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Selected agent %d\n", *id)
				}
				return nil
			})
		},
	})

	return cmd
}

func printAgent(cmd *cobra.Command, ag domain.AgentConfig) {
	out := cmd.OutOrStdout()
	p := ag.LLM.Parameters
	fmt.Fprintf(out, "Agent: %d (%s)\n", ag.ID, ag.Name)
	fmt.Fprintf(out, "  Model:       %s @ %s\n", ag.LLM.Model, ag.LLM.OllamaEndpoint)
	fmt.Fprintf(out, "  Whisper:     %s (%s)\n", ag.Whisper.Endpoint, ag.Whisper.Language)
	fmt.Fprintf(out, "  TTS:         %s\n", ag.Auralis.Endpoint)
	fmt.Fprintf(out, "  Priority:    %d  Enabled: %v\n", ag.Priority, ag.IsEnabled)
	fmt.Fprintf(out, "  Temp:        %.2f  TopP: %.2f  TopK: %d\n", p.GetTemperature(), p.GetTopP(), p.GetTopK())
	fmt.Fprintf(out, "  NumPredict:  %d  Seed: %d\n", p.GetNumPredict(), p.GetSeed())
	if sp := p.GetSystemPrompt(); sp != "" {
		fmt.Fprintf(out, "  Prompt:      %s\n", sp)
	}
}
