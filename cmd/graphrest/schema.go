package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemshift/graphrest/internal/server/schema"
)

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect schema files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate a schema file and list its types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := schema.LoadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range reg.Types() {
				t, _ := reg.Type(name)
				fmt.Fprintf(out, "%s (%s): %d properties, %d relations\n",
					name, t.Kind, len(t.Properties), len(t.Relations))
			}
			return nil
		},
	})
	return cmd
}
