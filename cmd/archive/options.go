package main

import (
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/matst80/slask-archive/pkg/common/jsoncompat"
	"github.com/matst80/slask-archive/pkg/filter"
	"github.com/spf13/cobra"
)

var (
	optionsType    string
	optionsFacet   string
	optionsContext string
	optionsArgs    map[string]string
	optionsQuery   string
	optionsJson    bool
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Print the computed options of a facet",
	Long: `Compute the options of one facet the same way the facet-options endpoint
does, including threshold and ordering.

Examples:
  archive options --type sermon --facet topic
  archive options --facet speaker --context service-type --arg serviceType=youth
  archive options --facet topic --query "facet-speaker=anna" --json`,
	RunE: runOptions,
}

func init() {
	optionsCmd.Flags().StringVar(&optionsType, "type", "", "content type (default from config)")
	optionsCmd.Flags().StringVar(&optionsFacet, "facet", "", "facet id")
	optionsCmd.Flags().StringVar(&optionsContext, "context", filter.DefaultContext, "context id")
	optionsCmd.Flags().StringToStringVar(&optionsArgs, "arg", nil, "context argument key=value")
	optionsCmd.Flags().StringVar(&optionsQuery, "query", "", "current request query string")
	optionsCmd.Flags().BoolVar(&optionsJson, "json", false, "print json")
	optionsCmd.MarkFlagRequired("facet")
}

func runOptions(cmd *cobra.Command, _ []string) error {
	vars, err := url.ParseQuery(optionsQuery)
	if err != nil {
		return fmt.Errorf("parse --query: %w", err)
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if optionsType != "" {
		cfg.ContentType = optionsType
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	m, err := a.manager()
	if err != nil {
		return err
	}
	opts, err := m.FilterOptions(ctx, optionsFacet, optionsContext, filter.OptionsArgs{
		QueryVars:   vars,
		ContextArgs: optionsArgs,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if optionsJson {
		return jsoncompat.NewEncoder(out).Encode(opts)
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VALUE\tTITLE\tCOUNT")
	for _, o := range opts {
		fmt.Fprintf(w, "%s\t%s\t%d\n", o.Value, o.Title, o.Count)
	}
	return w.Flush()
}
