package lockincli

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/oremus-labs/lockin/internal/session"
	"github.com/oremus-labs/lockin/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) sessionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := a.jsonOutput()
			if err != nil {
				return err
			}
			client, _, err := a.mustClient()
			if err != nil {
				return err
			}
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", fmt.Sprintf("%d", limit))
			}
			var resp struct {
				Sessions []store.Session `json:"sessions"`
			}
			if err := client.GetJSON(cmd.Context(), "/sessions?"+q.Encode(), &resp); err != nil {
				return err
			}
			if asJSON {
				return printJSON(a.out, resp.Sessions)
			}
			tw := newTable(a.out)
			fmt.Fprintf(tw, "ID\tSTATE\tFILES\tSTACK\tCREATED\n")
			for _, s := range resp.Sessions {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.ID, s.State, s.FileCount, s.TechStack, relativeTime(s.CreatedAt))
			}
			flushTable(tw)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to list")
	return cmd
}

func (a *app) filesCmd() *cobra.Command {
	var (
		outDir   string
		codeOnly bool
		show     string
	)
	cmd := &cobra.Command{
		Use:   "files <session-id>",
		Short: "List or download the files of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := a.jsonOutput()
			if err != nil {
				return err
			}
			client, err := a.agentClient()
			if err != nil {
				return err
			}
			files, err := client.SessionFiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			set := session.NewArtifactSet()
			set.Merge(files)
			paths := set.Paths()
			if codeOnly {
				paths = set.CodeFiles()
			}
			sort.Strings(paths)

			if show != "" {
				content, ok := set.Get(show)
				if !ok {
					return fmt.Errorf("file %q not found in session %s", show, args[0])
				}
				fmt.Fprint(a.out, content)
				return nil
			}
			if outDir != "" {
				selected := make(map[string]string, len(paths))
				for _, p := range paths {
					selected[p], _ = set.Get(p)
				}
				written, err := writeFiles(outDir, selected)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Wrote %d files to %s\n", len(written), outDir)
				return nil
			}
			if asJSON {
				return printJSON(a.out, paths)
			}
			tw := newTable(a.out)
			fmt.Fprintf(tw, "PATH\tBYTES\n")
			for _, p := range paths {
				content, _ := set.Get(p)
				fmt.Fprintf(tw, "%s\t%d\n", p, len(content))
			}
			flushTable(tw)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "Write the files into this directory")
	cmd.Flags().BoolVar(&codeOnly, "code", false, "Only include code files (.jsx, .js, .html, .css)")
	cmd.Flags().StringVar(&show, "show", "", "Print one file's content")
	return cmd
}
