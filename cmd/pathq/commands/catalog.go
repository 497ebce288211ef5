package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type catalogEntry struct {
	Endpoint string   `json:"endpoint"`
	Public   bool     `json:"public"`
	Requires []string `json:"requires,omitempty"`
}

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the endpoint catalog",
		Long: `Inspect the endpoint catalog. The built-in catalog is used unless the
configuration names a catalog file.`,
	}

	cmd.AddCommand(newCatalogListCommand())
	cmd.AddCommand(newCatalogCheckCommand())

	return cmd
}

func newCatalogListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			parser, err := cfg.Parser()
			if err != nil {
				return err
			}
			cat, err := cfg.LoadCatalog(parser)
			if err != nil {
				return err
			}

			entries := make([]catalogEntry, 0, cat.Len())
			for _, e := range cat.Endpoints() {
				entries = append(entries, catalogEntry{
					Endpoint: e.Format(parser.Syntax(), parser.Registry()),
					Public:   e.Public,
					Requires: e.Requires,
				})
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, entries)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENDPOINT\tACCESS")
			for _, e := range entries {
				access := "public"
				switch {
				case len(e.Requires) > 0:
					access = strings.Join(e.Requires, ",")
				case !e.Public:
					access = "authorized"
				}
				fmt.Fprintf(w, "%s\t%s\n", e.Endpoint, access)
			}
			return w.Flush()
		},
	}

	return cmd
}

func newCatalogCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <query>...",
		Short: "Check queries against the catalog",
		Long: `Check that queries address a catalog endpoint with indices of the types the
endpoint accepts. Queries that no endpoint names are accepted, since the live
graph decides for those.`,
		Example: `  pathq catalog check 'Account.Bank[INT:0]' 'Account.Bank[STRING:x]'`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			parser, err := cfg.Parser()
			if err != nil {
				return err
			}
			cat, err := cfg.LoadCatalog(parser)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var invalid int
			for _, text := range args {
				q, err := parser.Parse(text)
				if err == nil {
					err = cat.ValidateIndices(q)
				}
				if err != nil {
					invalid++
					fmt.Fprintf(out, "%s: %v\n", text, err)
					continue
				}
				if e, ok := cat.Match(q); ok {
					fmt.Fprintf(out, "%s: ok (%s)\n", text, e.Format(parser.Syntax(), parser.Registry()))
				} else {
					fmt.Fprintf(out, "%s: ok (not in catalog)\n", text)
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d queries are invalid", invalid, len(args))
			}
			return nil
		},
	}

	return cmd
}
