package lockincli

import (
	"fmt"
	"strings"

	"github.com/oremus-labs/lockin/internal/session"
	"github.com/oremus-labs/lockin/internal/stream"
	"github.com/spf13/cobra"
)

func (a *app) promptCmd() *cobra.Command {
	var (
		outDir string
		quiet  bool
	)
	cmd := &cobra.Command{
		Use:   "prompt <text...>",
		Short: "Submit a prompt and follow the generation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := a.jsonOutput()
			if err != nil {
				return err
			}
			client, err := a.agentClient()
			if err != nil {
				return err
			}
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return fmt.Errorf("prompt is empty")
			}

			sess := session.New()
			sess.AddUserMessage(text)
			for ev, err := range client.SubmitPrompt(cmd.Context(), text) {
				if err != nil {
					msg := sess.Fail(err)
					if !asJSON {
						fmt.Fprintf(a.errOut, "! %s (%v)\n", msg.Text, err)
					}
					break
				}
				msg := sess.Apply(ev)
				if asJSON || quiet {
					continue
				}
				if msg != nil {
					prefix := "-"
					if msg.IsError {
						prefix = "!"
					}
					fmt.Fprintf(a.out, "%s %s\n", prefix, msg.Text)
				} else if fc, ok := ev.(stream.FileCreated); ok {
					fmt.Fprintf(a.out, "+ %s\n", session.NormalizePath(fc.Filename))
				}
			}

			if outDir != "" && sess.Files.Len() > 0 {
				written, err := writeFiles(outDir, sess.Files.Snapshot())
				if err != nil {
					return err
				}
				if !asJSON {
					fmt.Fprintf(a.out, "Wrote %d files to %s\n", len(written), outDir)
				}
			}

			if asJSON {
				if err := printJSON(a.out, promptSummary(sess)); err != nil {
					return err
				}
			} else {
				printSessionSummary(a, sess)
			}
			if sess.State == session.StateFailed {
				return fmt.Errorf("generation failed: %s", sess.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "Write generated files into this directory")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the final summary")
	return cmd
}

type promptResult struct {
	SessionID  string            `json:"sessionId"`
	State      session.State     `json:"state"`
	TechStack  string            `json:"techStack,omitempty"`
	PreviewURL string            `json:"previewUrl,omitempty"`
	Error      string            `json:"error,omitempty"`
	Files      []string          `json:"files"`
	Messages   []session.Message `json:"messages"`
}

func promptSummary(sess *session.Session) promptResult {
	return promptResult{
		SessionID:  sess.ID,
		State:      sess.State,
		TechStack:  sess.TechStack,
		PreviewURL: sess.PreviewURL,
		Error:      sess.Error,
		Files:      sess.Files.Paths(),
		Messages:   sess.Messages,
	}
}

func printSessionSummary(a *app, sess *session.Session) {
	tw := newTable(a.out)
	fmt.Fprintf(tw, "SESSION\t%s\n", sess.ID)
	fmt.Fprintf(tw, "STATE\t%s\n", sess.State)
	if sess.TechStack != "" {
		fmt.Fprintf(tw, "STACK\t%s\n", sess.TechStack)
	}
	fmt.Fprintf(tw, "FILES\t%d\n", sess.Files.Len())
	if sess.PreviewURL != "" {
		fmt.Fprintf(tw, "PREVIEW\t%s\n", sess.PreviewURL)
	}
	flushTable(tw)
}
