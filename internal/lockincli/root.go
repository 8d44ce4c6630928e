// Package lockincli implements the lockin command line client.
package lockincli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oremus-labs/lockin/internal/agent"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

type app struct {
	cfgFile       string
	contextName   string
	overrideURL   string
	overrideToken string
	outputFormat  string

	config *Config
	out    io.Writer
	errOut io.Writer
}

// Execute runs the CLI until ctx is cancelled.
func Execute(ctx context.Context) error {
	root := NewRootCommand(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewRootCommand builds the command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "lockin",
		Short: "Generate web projects from a prompt",
		Long: `lockin talks to a Lock-In gateway: submit prompts, inspect generated files
and push sessions to a repository. Configure a gateway with 'lockin config set-context'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Config commands load/save the file manually.
			if strings.HasPrefix(cmd.CommandPath(), "lockin config") {
				return nil
			}
			if a.config == nil {
				cfg, err := LoadConfig(a.cfgFile)
				if err != nil {
					return err
				}
				a.config = cfg
			}
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", defaultConfigPath(), "Path to the lockin config file")
	flags.StringVar(&a.contextName, "context", "", "Context name to use (overrides current)")
	flags.StringVar(&a.overrideURL, "server", "", "Override gateway URL")
	flags.StringVar(&a.overrideToken, "token", "", "Override API token")
	flags.StringVarP(&a.outputFormat, "output", "o", "table", "Output format: table|json")

	root.AddCommand(
		a.promptCmd(),
		a.sessionsCmd(),
		a.filesCmd(),
		a.syncCmd(),
		a.jobsCmd(),
		a.watchCmd(),
		a.configCmd(),
	)
	return root
}

// resolvedContext merges config state with flag overrides. Without any
// context the local default gateway is used.
func (a *app) resolvedContext() (*Context, error) {
	if a.config == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	ctxName := a.contextName
	if ctxName == "" {
		ctxName = a.config.CurrentContext
	}
	var ctx Context
	if ctxName != "" {
		found, ok := a.config.Contexts[ctxName]
		if !ok {
			return nil, fmt.Errorf("context %q not found; use 'lockin config set-context'", ctxName)
		}
		ctx = found
	}
	if a.overrideURL != "" {
		ctx.Server = a.overrideURL
	}
	if a.overrideToken != "" {
		ctx.Token = a.overrideToken
	}
	if ctx.Server == "" {
		ctx.Server = defaultServer
	}
	return &ctx, nil
}

func (a *app) mustClient() (*Client, *Context, error) {
	ctx, err := a.resolvedContext()
	if err != nil {
		return nil, nil, err
	}
	client := &Client{
		BaseURL: ctx.Server,
		Token:   ctx.Token,
		Timeout: 15 * time.Second,
	}
	return client, ctx, nil
}

// agentClient speaks the prompt and file routes, which the gateway mirrors.
func (a *app) agentClient() (*agent.Client, error) {
	ctx, err := a.resolvedContext()
	if err != nil {
		return nil, err
	}
	return &agent.Client{BaseURL: ctx.Server, Token: ctx.Token, Timeout: 30 * time.Second}, nil
}

func (a *app) jsonOutput() (bool, error) {
	switch strings.ToLower(a.outputFormat) {
	case "json":
		return true, nil
	case "table", "":
		return false, nil
	default:
		return false, fmt.Errorf("unsupported output format %q", a.outputFormat)
	}
}
