package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const payloadPreview = 60

func newReplayCmd(opts *options) *cobra.Command {
	var after uint64
	var limit int
	c := &cobra.Command{
		Use:   "replay <id>",
		Short: "Print messages after a sequence number in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			if _, err := st.GetConversation(ctx, args[0]); err != nil {
				return err
			}
			msgs, err := st.ListMessages(ctx, args[0], after, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				enc := json.NewEncoder(out)
				for _, m := range msgs {
					if err := enc.Encode(m); err != nil {
						return err
					}
				}
				return nil
			}
			for _, m := range msgs {
				payload := []rune(m.Payload)
				if len(payload) > payloadPreview {
					payload = append(payload[:payloadPreview], '…')
				}
				fmt.Fprintf(out, "#%-6d %-10s %-9s %-16s %s  (%s)\n",
					m.Sequence, m.Status, m.Type, m.SenderID, string(payload), humanize.Time(millis(m.CreatedTS)))
			}
			if len(msgs) == 0 {
				fmt.Fprintf(out, "no messages after %d\n", after)
			}
			return nil
		},
	}
	c.Flags().Uint64Var(&after, "after", 0, "print messages with a higher sequence")
	c.Flags().IntVar(&limit, "limit", 0, "stop after this many messages (0 prints all)")
	return c
}
