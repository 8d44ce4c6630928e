package lockincli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
	}

	var (
		server      string
		token       string
		githubToken string
		makeCurrent bool
	)
	setContextCmd := &cobra.Command{
		Use:   "set-context <name>",
		Short: "Create or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				return fmt.Errorf("--server is required")
			}
			cfg, err := LoadConfig(a.cfgFile)
			if err != nil {
				return err
			}
			setContext(cfg, Context{
				Name:        args[0],
				Server:      server,
				Token:       token,
				GitHubToken: githubToken,
			}, makeCurrent)
			if err := SaveConfig(cfg, a.cfgFile); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Context %q updated.\n", args[0])
			return nil
		},
	}
	// Local flags shadow the persistent --server/--token overrides here.
	setContextCmd.Flags().StringVar(&server, "server", "", "Gateway URL")
	setContextCmd.Flags().StringVar(&token, "token", "", "API token")
	setContextCmd.Flags().StringVar(&githubToken, "github-token", "", "Default GitHub token for sync")
	setContextCmd.Flags().BoolVar(&makeCurrent, "current", true, "Set as current context")

	useContextCmd := &cobra.Command{
		Use:   "use-context <name>",
		Short: "Switch the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.cfgFile)
			if err != nil {
				return err
			}
			if err := ensureContextExists(cfg, args[0]); err != nil {
				return err
			}
			cfg.CurrentContext = args[0]
			if err := SaveConfig(cfg, a.cfgFile); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Switched to context %q.\n", args[0])
			return nil
		},
	}

	currentContextCmd := &cobra.Command{
		Use:   "current-context",
		Short: "Print the current context",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.cfgFile)
			if err != nil {
				return err
			}
			if cfg.CurrentContext == "" {
				fmt.Fprintln(a.out, "No context configured.")
				return nil
			}
			fmt.Fprintln(a.out, cfg.CurrentContext)
			return nil
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Show the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := a.jsonOutput()
			if err != nil {
				return err
			}
			cfg, err := LoadConfig(a.cfgFile)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(a.out, cfg)
			}
			fmt.Fprintf(a.out, "Config file: %s\n", a.cfgFile)
			names := make([]string, 0, len(cfg.Contexts))
			for name := range cfg.Contexts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				current := " "
				if cfg.CurrentContext == name {
					current = "*"
				}
				fmt.Fprintf(a.out, "%s %s (%s)\n", current, name, cfg.Contexts[name].Server)
			}
			return nil
		},
	}

	cmd.AddCommand(setContextCmd, useContextCmd, currentContextCmd, viewCmd)
	return cmd
}
