package lockincli

import (
	"fmt"

	"github.com/oremus-labs/lockin/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect repository sync jobs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := a.jsonOutput()
			if err != nil {
				return err
			}
			client, _, err := a.mustClient()
			if err != nil {
				return err
			}
			var resp struct {
				Jobs []store.Job `json:"jobs"`
			}
			if err := client.GetJSON(cmd.Context(), fmt.Sprintf("/jobs?limit=%d", limit), &resp); err != nil {
				return err
			}
			if asJSON {
				return printJSON(a.out, resp.Jobs)
			}
			tw := newTable(a.out)
			fmt.Fprintf(tw, "ID\tTYPE\tSTATUS\tATTEMPT\tUPDATED\n")
			for _, job := range resp.Jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n",
					shortID(job.ID),
					job.Type,
					job.Status,
					job.Attempt,
					job.MaxAttempts,
					relativeTime(job.UpdatedAt))
			}
			flushTable(tw)
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum jobs to list")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a job and its log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := a.jsonOutput()
			if err != nil {
				return err
			}
			client, _, err := a.mustClient()
			if err != nil {
				return err
			}
			var job store.Job
			if err := client.GetJSON(cmd.Context(), "/jobs/"+args[0], &job); err != nil {
				return err
			}
			if asJSON {
				return printJSON(a.out, job)
			}
			printJob(a, &job)
			return nil
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}

func printJob(a *app, job *store.Job) {
	fmt.Fprintf(a.out, "Job %s (%s): %s\n", job.ID, job.Type, job.Status)
	if repoURL, ok := job.Result["repoUrl"].(string); ok && repoURL != "" {
		fmt.Fprintf(a.out, "Repository: %s\n", repoURL)
	}
	if job.Error != "" {
		fmt.Fprintf(a.out, "Error: %s\n", job.Error)
	}
	for _, entry := range job.Logs {
		fmt.Fprintf(a.out, "  %s [%s] %s\n", entry.Timestamp.Format("15:04:05"), entry.Level, entry.Message)
	}
}
