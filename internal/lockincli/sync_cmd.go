package lockincli

import (
	"context"
	"fmt"
	"time"

	"github.com/oremus-labs/lockin/internal/store"
	"github.com/spf13/cobra"
)

type syncPayload struct {
	SessionID string `json:"sessionId"`
	RepoName  string `json:"repoName"`
	Token     string `json:"token,omitempty"`
	Async     bool   `json:"async,omitempty"`
}

type syncAnswer struct {
	Status  string `json:"status"`
	RepoURL string `json:"repo_url"`
	JobID   string `json:"job_id"`
	Detail  string `json:"detail,omitempty"`
}

func (a *app) syncCmd() *cobra.Command {
	var (
		repo        string
		githubToken string
		async       bool
		wait        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sync <session-id>",
		Short: "Push a session's files to a new GitHub repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := a.jsonOutput()
			if err != nil {
				return err
			}
			if repo == "" {
				return fmt.Errorf("--repo is required")
			}
			client, ctxCfg, err := a.mustClient()
			if err != nil {
				return err
			}
			if githubToken == "" {
				githubToken = ctxCfg.GitHubToken
			}
			payload := syncPayload{SessionID: args[0], RepoName: repo, Token: githubToken, Async: async}

			if !async {
				client.Timeout = wait
				var ans syncAnswer
				if err := client.PostJSON(cmd.Context(), "/github/sync", payload, &ans); err != nil {
					return err
				}
				if asJSON {
					return printJSON(a.out, ans)
				}
				fmt.Fprintf(a.out, "Repository created: %s (job %s)\n", ans.RepoURL, shortID(ans.JobID))
				return nil
			}

			var job store.Job
			if err := client.PostJSON(cmd.Context(), "/github/sync", payload, &job); err != nil {
				return err
			}
			if wait <= 0 {
				if asJSON {
					return printJSON(a.out, job)
				}
				fmt.Fprintf(a.out, "Sync queued as job %s\n", job.ID)
				return nil
			}
			final, err := waitForJob(cmd.Context(), client, job.ID, wait)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(a.out, final)
			}
			printJob(a, final)
			if final.Status == store.JobFailed {
				return fmt.Errorf("sync failed: %s", final.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&repo, "repo", "", "Repository name to create")
	cmd.Flags().StringVar(&githubToken, "github-token", "", "GitHub token (defaults to the context's githubToken)")
	cmd.Flags().BoolVar(&async, "async", false, "Queue the sync as a background job")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "How long to wait for the sync to finish")
	return cmd
}

func waitForJob(ctx context.Context, client *Client, id string, timeout time.Duration) (*store.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		var job store.Job
		if err := client.GetJSON(ctx, "/jobs/"+id, &job); err != nil {
			return nil, err
		}
		if job.Status == store.JobDone || job.Status == store.JobFailed {
			return &job, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("job %s still %s: %w", id, job.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}
