package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/pathq/pkg/coordinator"
)

type requiresResult struct {
	Query        string   `json:"query"`
	Known        bool     `json:"known"`
	Capabilities []string `json:"capabilities"`
}

func newRequiresCommand() *cobra.Command {
	var (
		graphPath string
		varFlags  variableFlags
	)

	cmd := &cobra.Command{
		Use:   "requires <query>...",
		Short: "Show the capabilities needed to resolve queries",
		Long: `Report which capabilities a caller needs to access the endpoint a query
resolves through. Nothing is fetched.

The configured requirements table is consulted first, then the catalog, then
the graph itself. Public endpoints need nothing. An endpoint that needs
authorization but has no known requirements is reported as unknown.`,
		Example: `  pathq requires --graph graph.yaml 'Account.Bank[INT:0]' 'Characters'`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			variables, err := a.variables(ctx, varFlags)
			if err != nil {
				return err
			}
			c, err := a.coordinator(graphPath)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			settings := coordinator.QuerySettings{Variables: variables}
			for _, text := range args {
				caps, known, err := c.RequiredCapabilities(ctx, text, settings)
				if err != nil {
					return err
				}
				if caps == nil {
					caps = []string{}
				}

				if jsonOutput {
					if err := writeJSON(out, requiresResult{Query: text, Known: known, Capabilities: caps}); err != nil {
						return err
					}
					continue
				}
				switch {
				case !known:
					fmt.Fprintf(out, "%s: unknown (authorization required)\n", text)
				case len(caps) == 0:
					fmt.Fprintf(out, "%s: public\n", text)
				default:
					fmt.Fprintf(out, "%s: %s\n", text, strings.Join(caps, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&graphPath, "graph", "g", "", "graph description file (required)")
	varFlags.register(cmd)

	return cmd
}
