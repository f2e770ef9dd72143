package cli

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"noco-bridge/internal/schema"
)

func newTablesCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := o.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			tables := client.Registry().Tables()
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, tables)
			}
			rows := make([][]string, 0, len(tables))
			for _, t := range tables {
				rows = append(rows, []string{
					t.Name,
					t.ID,
					strconv.Itoa(len(t.Fields)),
					strconv.Itoa(len(t.LinkFields())),
					strconv.Itoa(len(t.Views)),
				})
			}
			PrintTable(os.Stdout, []string{"name", "id", "fields", "link fields", "views"}, rows)
			return nil
		},
	}
}

func newDescribeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Show the fields, link fields and views of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := o.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			reg := client.Registry()
			t, err := reg.Table(args[0])
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, t)
			}

			PrintDetail(os.Stdout, map[string]interface{}{
				"table":   t.Name,
				"id":      t.ID,
				"base_id": reg.BaseID(),
			})
			_, _ = os.Stdout.WriteString("\n")
			PrintTable(os.Stdout, []string{"field", "id", "type", "relation", "related table"}, fieldRows(reg, t))

			if len(t.Views) > 0 {
				_, _ = os.Stdout.WriteString("\n")
				views := make([][]string, 0, len(t.Views))
				for _, v := range t.Views {
					views = append(views, []string{v.Name, v.ID})
				}
				PrintTable(os.Stdout, []string{"view", "id"}, views)
			}
			return nil
		},
	}
}

// fieldRows renders the fields of t, naming related tables where the
// registry knows them.
func fieldRows(reg *schema.Registry, t schema.Table) [][]string {
	names := make(map[string]string)
	for _, other := range reg.Tables() {
		names[other.ID] = other.Name
	}

	rows := make([][]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		var relation, related string
		if f.Link != nil {
			relation = string(f.Link.Relation)
			related = f.Link.RelatedTableID
			if name, ok := names[related]; ok {
				related = name
			}
		}
		rows = append(rows, []string{f.Name, f.ID, f.Type, relation, related})
	}
	return rows
}
