package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/sipdash/internal/auth"
	"github.com/soyeahso/sipdash/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration values",
		Long: "Read and edit the config file by dotted key, e.g. connect.maxAttempts.\n" +
			"Keys outside the api, hubs, connect, state, logging and metrics sections are rejected.",
	}

	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigUnsetCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

// resolveKey parses a dotted key and checks it against the schema.
func resolveKey(raw string) ([]string, config.Field, error) {
	path, err := config.ParseConfigPath(raw)
	if err != nil {
		return nil, config.Field{}, err
	}
	f, err := config.LookupField(path)
	if err != nil {
		return nil, config.Field{}, err
	}
	return path, f, nil
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, f, err := resolveKey(args[0])
			if err != nil {
				return err
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}

			val, ok := config.GetValueAtPath(raw, path)
			if !ok {
				return fmt.Errorf("key %q not set", args[0])
			}
			if s, isStr := val.(string); f.Sensitive() && isStr && !config.IsEnvReference(s) {
				val = "<redacted>"
			}
			return printValue(cmd.OutOrStdout(), val)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: "Set a configuration value. Lists take comma-separated values.\n" +
			"A literal api.token is kept in the state store rather than the config file;\n" +
			"a ${VAR} reference is written to the file as is.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, f, err := resolveKey(args[0])
			if err != nil {
				return err
			}
			if !f.Leaf() {
				return fmt.Errorf("%s is a section; set one of its keys", f.Path)
			}

			if f.Sensitive() && !config.IsEnvReference(args[1]) {
				return withTokens(cmd.Context(), func(ctx context.Context, s *auth.KVStore) error {
					if err := s.SetToken(ctx, args[1]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in the state store (not written to %s)\n", f.Path, paths.Config)
					return nil
				})
			}

			value, err := f.ParseValue(args[1])
			if err != nil {
				return err
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}
			config.SetValueAtPath(raw, path, value)
			if err := saveValidated(raw); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", f.Path, value)
			return nil
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, f, err := resolveKey(args[0])
			if err != nil {
				return err
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}
			if !config.UnsetValueAtPath(raw, path) {
				return fmt.Errorf("key %q not set", args[0])
			}
			if err := saveValidated(raw); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", f.Path)
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
		},
	}
}

// saveValidated writes raw only if the resulting config validates.
func saveValidated(raw map[string]any) error {
	cfg, err := config.FromRaw(raw)
	if err != nil {
		return err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i, issue := range issues {
			msgs[i] = issue.String()
		}
		return fmt.Errorf("invalid config, not saved: %s", strings.Join(msgs, "; "))
	}
	if err := paths.EnsureDirs(); err != nil {
		return err
	}
	return config.SaveRaw(paths.Config, raw)
}

// printValue outputs a value in a human-readable format.
func printValue(w io.Writer, v any) error {
	switch val := v.(type) {
	case string:
		fmt.Fprintln(w, val)
	case map[string]any, []any:
		data, err := yaml.Marshal(val)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(data))
	default:
		fmt.Fprintln(w, val)
	}
	return nil
}
