package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func newHistoryCmd(root *Root) *cobra.Command {
	var (
		limit    int
		flaky    bool
		identity string
		remote   string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded verdicts",
		Long: `Show recorded verdicts from the local database, or from a running
"snapdiff serve" with --remote host:port. --flaky lists identities that did
not settle or whose verdict flipped between runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				headers []string
				rows    [][]string
				aligns  []columnAlignment
				err     error
			)
			if flaky {
				headers = []string{"Identity", "Runs", "Unstable", "Different", "Identical", "Last seen"}
				aligns = []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}
				rows, err = root.flakyRows(cmd.Context(), remote, limit)
			} else {
				headers = []string{"When", "Identity", "Verdict", "Distance", "Area", "Captures", "Diff"}
				aligns = []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}
				rows, err = root.verdictRows(cmd.Context(), remote, identity, limit)
			}
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no verdicts recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of rows")
	cmd.Flags().BoolVar(&flaky, "flaky", false, "list unstable or flipping identities")
	cmd.Flags().StringVar(&identity, "identity", "", "only show this identity")
	cmd.Flags().StringVar(&remote, "remote", "", "query a snapdiff gRPC server instead of the local database")
	return cmd
}

func (r *Root) verdictRows(ctx context.Context, remote, identity string, limit int) ([][]string, error) {
	if remote != "" {
		client, err := r.dial(remote)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		items, err := client.Recent(ctx, identity, limit)
		if err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(items))
		for _, it := range items {
			rows = append(rows, []string{
				str(it["created_at"]), str(it["identity"]), verdictLabel(str(it["verdict"]), it["exhausted"] == true),
				num(it["max_color_distance"], 1), num(it["diff_area"], 0), num(it["attempts"], 0), str(it["diff_path"]),
			})
		}
		return rows, nil
	}

	recs, err := r.store.RecentVerdicts(identity, limit)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, []string{
			rec.CreatedAt.Format(time.DateTime), rec.Identity, verdictLabel(rec.Verdict, rec.Exhausted),
			strconv.FormatFloat(rec.MaxColorDistance, 'f', 1, 64), strconv.Itoa(rec.DiffArea), strconv.Itoa(rec.Attempts), rec.DiffPath,
		})
	}
	return rows, nil
}

func (r *Root) flakyRows(ctx context.Context, remote string, limit int) ([][]string, error) {
	if remote != "" {
		client, err := r.dial(remote)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		items, err := client.Flaky(ctx, limit)
		if err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(items))
		for _, it := range items {
			rows = append(rows, []string{
				str(it["identity"]), num(it["runs"], 0), num(it["exhausted"], 0),
				num(it["differences"], 0), num(it["identical"], 0), str(it["last_seen"]),
			})
		}
		return rows, nil
	}

	recs, err := r.store.FlakyIdentities(limit)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, []string{
			rec.Identity, strconv.Itoa(rec.Runs), strconv.Itoa(rec.Exhausted),
			strconv.Itoa(rec.Differences), strconv.Itoa(rec.Identical), rec.LastSeen.Format(time.DateTime),
		})
	}
	return rows, nil
}

func verdictLabel(verdict string, exhausted bool) string {
	if exhausted {
		return verdict + " (unstable)"
	}
	return verdict
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func num(v any, prec int) string {
	f, ok := v.(float64)
	if !ok {
		return str(v)
	}
	return strconv.FormatFloat(f, 'f', prec, 64)
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}
