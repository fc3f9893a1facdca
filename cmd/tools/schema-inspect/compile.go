package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCompileCmd() *cobra.Command {
	var jsonSchema bool

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "List the fields a question set compiles to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, cs, err := loadQuestions(cmd)
			if err != nil {
				return err
			}
			if jsonSchema {
				return writeJSON(cmd.OutOrStdout(), cs.JSONSchema())
			}

			fmt.Fprintf(cmd.OutOrStdout(), "event %s: %d fields\n", f.EventID, len(cs.Fields()))
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SECTION\tPATH\tTYPE\tREQUIRED")
			for _, field := range cs.Fields() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", field.Section, field.Path, field.Type, field.Required)
			}
			for _, meta := range cs.OtherMeta {
				fmt.Fprintf(tw, "%s\t%s\tother of %s\t-\n", meta.Section, meta.OtherPath, meta.MainPath)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonSchema, "json-schema", false, "Print the structural JSON Schema instead of the field table")
	return cmd
}
