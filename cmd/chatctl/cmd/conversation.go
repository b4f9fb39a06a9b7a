package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func millis(ts int64) time.Time { return time.UnixMilli(ts) }

func newConversationCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "conversation <id>",
		Short: "Show a conversation with its participant cursors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			conv, err := st.GetConversation(context.Background(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return json.NewEncoder(out).Encode(conv)
			}

			fmt.Fprintf(out, "Conversation:  %s\n", conv.ID)
			fmt.Fprintf(out, "Participants:  %s\n", strings.Join(conv.Participants, ", "))
			fmt.Fprintf(out, "Messages:      %s\n", humanize.Comma(int64(conv.LastSequence)))
			fmt.Fprintf(out, "Created:       %s\n", humanize.Time(millis(conv.CreatedTS)))
			if conv.UpdatedTS > 0 {
				fmt.Fprintf(out, "Last activity: %s\n", humanize.Time(millis(conv.UpdatedTS)))
			}
			users := make([]string, 0, len(conv.Cursors))
			for u := range conv.Cursors {
				users = append(users, u)
			}
			sort.Strings(users)
			if len(users) > 0 {
				fmt.Fprintln(out, "Cursors:")
			}
			for _, u := range users {
				cur := conv.Cursors[u]
				fmt.Fprintf(out, "  %-24s delivered %-8d read %d\n", u, cur.Delivered, cur.Read)
			}
			return nil
		},
	}
}
