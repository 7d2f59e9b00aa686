// File: cmd/connectors.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gantryhq/gantry/internal/connector"
	"github.com/gantryhq/gantry/internal/connector/subs"
	"github.com/gantryhq/gantry/internal/observability"
)

// builtinRegistry registers the connectors compiled into this binary.
func builtinRegistry(logger *zap.Logger, opts subs.Options) *connector.Registry {
	registry := connector.NewRegistry()
	// Registration cannot fail for the distinct builtin names.
	_ = registry.Register(subs.New(logger, opts))
	return registry
}

// newConnectorsCmd creates the `connectors` listing command.
func newConnectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connectors",
		Short: "Lists the connectors compiled into this binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := builtinRegistry(observability.GetLogger(), subs.Options{})

			for _, name := range registry.Names() {
				conn, err := registry.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", name, conn.Summary())
			}
			return nil
		},
	}
}
