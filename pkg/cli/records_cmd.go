package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"noco-bridge/internal/domain"
	"noco-bridge/internal/nocodb"
)

func newRecordsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Read and delete table records",
	}
	cmd.AddCommand(newRecordsListCmd(o))
	cmd.AddCommand(newRecordsDeleteCmd(o))
	return cmd
}

func newRecordsListCmd(o *rootOptions) *cobra.Command {
	var (
		fields   []string
		where    []string
		view     string
		pageSize int
		offset   int
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "list <table>",
		Short: "List the records of a table",
		Example: `  # First page of a table
  noco records list Zone

  # Every French zone, two columns, as JSON
  noco records list Zone --all --fields Code,Title --where Country=FR -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cond, err := parseWhere(where)
			if err != nil {
				return err
			}

			client, _, err := o.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			opts := nocodb.ReadOptions{
				Fields:   fields,
				Where:    cond,
				View:     view,
				PageSize: pageSize,
				Offset:   offset,
			}
			var rs domain.RecordSet
			if all {
				rs, err = client.ReadAll(cmd.Context(), args[0], opts)
			} else {
				rs, err = client.Read(cmd.Context(), args[0], opts)
			}
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, rs.Records)
			}
			columns := rs.ColumnNames()
			rows := make([][]string, 0, rs.Len())
			for _, r := range rs.Records {
				row := make([]string, len(columns))
				for i, c := range columns {
					row[i] = formatValue(r.Get(c))
				}
				rows = append(rows, row)
			}
			PrintTable(os.Stdout, columns, rows)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&fields, "fields", nil, "Fields to return, comma-separated (default all)")
	cmd.Flags().StringArrayVar(&where, "where", nil, "Equality filter field=value; repeat to combine with AND")
	cmd.Flags().StringVar(&view, "view", "", "Saved view to read through")
	cmd.Flags().IntVar(&pageSize, "page-size", 25, "Records per page (max 1000)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Records to skip")
	cmd.Flags().BoolVar(&all, "all", false, "Read every page")

	return cmd
}

// parseWhere turns field=value pairs into a condition.
func parseWhere(pairs []string) (domain.Condition, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	cond := make(domain.Condition, len(pairs))
	for _, p := range pairs {
		field, value, ok := strings.Cut(p, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --where %q: expected field=value", p)
		}
		cond[field] = value
	}
	return cond, nil
}

func newRecordsDeleteCmd(o *rootOptions) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "delete <table> <id>...",
		Short: "Delete records by Id",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]*int64, 0, len(args)-1)
			for _, a := range args[1:] {
				id, err := strconv.ParseInt(a, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid record id %q", a)
				}
				ids = append(ids, &id)
			}

			client, cfg, err := o.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			if !cmd.Flags().Changed("batch-size") {
				batchSize = cfg.BatchSize
			}
			if err := client.Delete(cmd.Context(), args[0], ids, batchSize); err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, map[string]interface{}{
					"status":  "ok",
					"table":   args[0],
					"deleted": len(ids),
				})
			}
			_, _ = fmt.Fprintf(os.Stdout, "Deleted %d record(s) from %s\n", len(ids), args[0])
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Ids per delete request (default NOCODB_BATCH_SIZE or 10)")

	return cmd
}
