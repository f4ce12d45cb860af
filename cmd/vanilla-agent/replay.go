package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/becomevocal/vanilla-agent-go/pkg/actions"
	"github.com/becomevocal/vanilla-agent-go/pkg/chat"
	"github.com/becomevocal/vanilla-agent-go/pkg/contentparser"
)

func newReplayCommand() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "replay <stream-file>",
		Short: "Replay a captured event stream and print the assembled conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			sess := chat.NewSession(
				chat.WithTransport(chat.TransportFunc(func(ctx context.Context, req chat.Request) (io.ReadCloser, error) {
					return os.Open(path)
				})),
				chat.WithParserMode(contentparser.Mode(mode)),
				chat.WithFinalizer(actions.NewManager(nil)),
			)
			if err := sess.SendMessage(cmd.Context(), "replay"); err != nil {
				return err
			}

			out := struct {
				Status    chat.Status    `json:"status"`
				LastError string         `json:"lastError,omitempty"`
				Messages  []chat.Message `json:"messages"`
			}{
				Status:    sess.Status(),
				LastError: sess.LastError(),
				Messages:  sess.Messages(),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&mode, "parser", string(contentparser.ModeJSON), "content parser mode (plain, json, regex-json, xml)")
	return cmd
}
