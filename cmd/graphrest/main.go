// Command graphrest serves a typed property graph over REST.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "graphrest",
		Short: "REST server for a typed property graph",
		Long: `graphrest resolves request paths against a schema of node and
relationship types and serves searches, creations, updates and deletions of
the graph behind it.

Configuration is read from GRAPHREST_* environment variables and an optional
YAML file named by GRAPHREST_CONFIG.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newSchemaCommand())
	return root
}
