package lockincli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		sessionID string
		until     string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow gateway events",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := a.jsonOutput()
			if err != nil {
				return err
			}
			client, _, err := a.mustClient()
			if err != nil {
				return err
			}
			path := "/events"
			if sessionID != "" {
				path += "?session=" + url.QueryEscape(sessionID)
			}
			err = client.StreamEvents(cmd.Context(), path, func(evt EventEnvelope) bool {
				if asJSON {
					_ = printJSON(a.out, evt)
				} else {
					fmt.Fprintf(a.out, "%s  %-24s %s %s\n",
						evt.Timestamp.Format("15:04:05"), evt.Type, evt.SessionID, compact(evt.Data))
				}
				return until == "" || !strings.HasPrefix(evt.Type, until)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Only show events for this session")
	cmd.Flags().StringVar(&until, "until", "", "Stop after the first event whose type has this prefix")
	return cmd
}

func compact(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}
