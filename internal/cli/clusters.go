package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/skimmer/internal/rbn"
)

// ClusterEntry describes one catalog cluster.
type ClusterEntry struct {
	Name       string   `json:"name"`
	Candidates []string `json:"candidates"`
	// Order is the 1-based position in the selection, 0 if unselected.
	Order int `json:"order,omitempty"`
}

// ClustersResult is the JSON payload of the clusters command.
type ClustersResult struct {
	Clusters  []ClusterEntry `json:"clusters"`
	Selection []string       `json:"selection"`
}

// NewClustersCommand creates the clusters command.
func NewClustersCommand(rootOpts *RootOptions) *cobra.Command {
	var selection string

	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "List known clusters and the selection order",
		Long: `List the built-in and configured clusters with their servers, and the
order in which the selected clusters are tried. Servers within a cluster
are shuffled on every connect.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClusters(rootOpts, selection, cmd)
		},
	}

	cmd.Flags().StringVar(&selection, "clusters", "", "cluster selection to resolve (overrides clusters)")

	return cmd
}

func runClusters(opts *RootOptions, selection string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, _, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	if selection != "" {
		cfg.Clusters = rbn.ParseClusterList(selection)
	}

	cat, err := cfg.Catalogue()
	if err != nil {
		_ = formatter.Error(ErrCodeConfigField, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid catalog", err)
	}
	resolved, err := cat.Resolve(cfg.Clusters)
	if err != nil {
		_ = formatter.Error(ErrCodeConfigField, err.Error(), map[string]any{"known": cat.Names()})
		return WrapExitError(ExitCommandError, "bad cluster selection", err)
	}

	order := make(map[string]int, len(resolved))
	result := ClustersResult{Selection: make([]string, 0, len(resolved))}
	for i, c := range resolved {
		order[c.Name] = i + 1
		result.Selection = append(result.Selection, c.Name)
	}
	for _, name := range cat.Names() {
		entry := ClusterEntry{Name: name, Order: order[name]}
		for _, cand := range cat[name] {
			entry.Candidates = append(entry.Candidates, cand.Address())
		}
		result.Clusters = append(result.Clusters, entry)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	for _, e := range result.Clusters {
		mark := "  "
		if e.Order > 0 {
			mark = fmt.Sprintf("%d.", e.Order)
		}
		fmt.Fprintf(w, "%-3s %-18s %s\n", mark, e.Name, strings.Join(e.Candidates, " "))
	}
	fmt.Fprintf(w, "Selection: %s\n", strings.Join(result.Selection, " → "))
	return nil
}
