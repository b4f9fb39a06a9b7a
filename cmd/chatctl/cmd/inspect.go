package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/karthiknish/aroosi-sub016/internal/maintenance"
	"github.com/karthiknish/aroosi-sub016/pkg/state"
	"github.com/karthiknish/aroosi-sub016/pkg/store/codec"
	"github.com/karthiknish/aroosi-sub016/pkg/store/keys"
)

type kindSummary struct {
	Kind    string   `json:"kind"`
	Keys    int      `json:"keys"`
	Bytes   uint64   `json:"bytes"`
	Samples []string `json:"samples,omitempty"`
}

func newInspectCmd(opts *options) *cobra.Command {
	var prefix, key string
	var samples int
	c := &cobra.Command{
		Use:   "inspect",
		Short: "Summarise stored keys by kind, or decode one key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()
			out := cmd.OutOrStdout()

			if key != "" {
				raw, err := st.GetRaw(key)
				if err != nil {
					return fmt.Errorf("get %s: %w", key, err)
				}
				diag, err := codec.Diagnose(raw)
				if err != nil {
					// not every value is cbor, system keys are plain bytes
					diag = fmt.Sprintf("%q", raw)
				}
				fmt.Fprintf(out, "%s (%s, %s)\n%s\n", key, keys.Kind(key), humanize.IBytes(uint64(len(raw))), diag)
				return nil
			}

			list, err := st.ListKeys(prefix)
			if err != nil {
				return err
			}
			byKind := make(map[string]*kindSummary)
			for _, k := range list {
				kind := keys.Kind(k)
				s, ok := byKind[kind]
				if !ok {
					s = &kindSummary{Kind: kind}
					byKind[kind] = s
				}
				s.Keys++
				if raw, err := st.GetRaw(k); err == nil {
					s.Bytes += uint64(len(raw))
				}
				if len(s.Samples) < samples {
					s.Samples = append(s.Samples, k)
				}
			}
			summaries := make([]*kindSummary, 0, len(byKind))
			for _, s := range byKind {
				summaries = append(summaries, s)
			}
			sort.Slice(summaries, func(i, j int) bool { return summaries[i].Kind < summaries[j].Kind })

			if opts.json {
				return json.NewEncoder(out).Encode(map[string]any{"total": len(list), "kinds": summaries})
			}
			printSummary(out, len(list), summaries)
			printMaintenance(out, opts.db)
			return nil
		},
	}
	c.Flags().StringVar(&prefix, "prefix", "", "only keys with this prefix")
	c.Flags().StringVar(&key, "key", "", "decode a single key")
	c.Flags().IntVar(&samples, "samples", 3, "sample keys shown per kind")
	return c
}

func printSummary(w io.Writer, total int, summaries []*kindSummary) {
	fmt.Fprintf(w, "Total keys: %s\n\n", humanize.Comma(int64(total)))
	for _, s := range summaries {
		fmt.Fprintf(w, "%-18s %10s keys %10s\n", s.Kind, humanize.Comma(int64(s.Keys)), humanize.IBytes(s.Bytes))
		for _, k := range s.Samples {
			fmt.Fprintf(w, "    %s\n", k)
		}
	}
}

func printMaintenance(w io.Writer, db string) {
	rep, err := maintenance.ReadRecord(state.MaintenancePath(db))
	if err != nil {
		return
	}
	fmt.Fprintf(w, "\nLast maintenance: %s (%s), idempotency purged %s, notifications purged %s",
		humanize.Time(rep.FinishedAt), rep.FinishedAt.Format(time.RFC3339),
		humanize.Comma(int64(rep.IdempotencyPurged)), humanize.Comma(int64(rep.NotificationsPurged)))
	if rep.DryRun {
		fmt.Fprint(w, " (dry run)")
	}
	if rep.Error != "" {
		fmt.Fprintf(w, "\n  error: %s", rep.Error)
	}
	fmt.Fprintln(w)
}
