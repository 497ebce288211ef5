package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/pathq/pkg/query"
)

type parsedIndex struct {
	Type     query.IndexType `json:"type"`
	Value    any             `json:"value,omitempty"`
	Variable string          `json:"variable,omitempty"`
}

type parsedPart struct {
	Name    string        `json:"name"`
	Indices []parsedIndex `json:"indices,omitempty"`
}

type parseResult struct {
	Query    string       `json:"query"`
	Parts    []parsedPart `json:"parts"`
	Endpoint string       `json:"endpoint,omitempty"`
}

func newParseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <query>",
		Short: "Parse a path query and show its structure",
		Long: `Parse a path query with the configured syntax and print its parts and
indices. The catalog endpoint the query maps to is shown when there is one.`,
		Example: `  # Show the parts of a query
  pathq parse 'Account.Bank[INT:5]'

  # Use a variable index
  pathq parse --json 'Characters[STRING:$name].Equipment'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			parser, err := cfg.Parser()
			if err != nil {
				return err
			}
			q, err := parser.Parse(args[0])
			if err != nil {
				return err
			}

			res := parseResult{Query: parser.Render(q)}
			for _, p := range q.Parts() {
				pp := parsedPart{Name: p.Name()}
				for _, idx := range p.Indices() {
					pi := parsedIndex{Type: idx.Type()}
					if idx.IsVariable() {
						pi.Variable = idx.VariableName()
					} else {
						pi.Value = idx.Value()
					}
					pp.Indices = append(pp.Indices, pi)
				}
				res.Parts = append(res.Parts, pp)
			}

			cat, err := cfg.LoadCatalog(parser)
			if err != nil {
				return err
			}
			if ep, ok := cat.Match(q); ok {
				res.Endpoint = ep.Format(parser.Syntax(), parser.Registry())
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, res)
			}

			fmt.Fprintf(out, "Query: %s\n", res.Query)
			for i, p := range res.Parts {
				fmt.Fprintf(out, "  %d. %s\n", i+1, p.Name)
				for _, idx := range p.Indices {
					if idx.Variable != "" {
						fmt.Fprintf(out, "       %s variable $%s\n", idx.Type, idx.Variable)
					} else {
						fmt.Fprintf(out, "       %s %v\n", idx.Type, idx.Value)
					}
				}
			}
			if res.Endpoint != "" {
				fmt.Fprintf(out, "Endpoint: %s\n", res.Endpoint)
			} else {
				fmt.Fprintln(out, "Endpoint: none")
			}
			return nil
		},
	}

	return cmd
}
