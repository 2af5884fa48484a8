package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"storefront/internal/usecase"
)

var (
	searchText      string
	searchModel     string
	searchIndex     string
	searchNamespace string
	searchTopK      int
	searchLimit     int
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search products",
	Long: `Search products with exact keyword matches first and vector matches after.
An empty query lists the catalog.

Examples:
  storefront search -q "blue lamp"
  storefront search -q "travel tripod" --model gemini --top-k 30 --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchText, "query", "q", "", "search query")
	searchCmd.Flags().StringVarP(&searchModel, "model", "m", "", "embedding model profile (default from config)")
	searchCmd.Flags().StringVar(&searchIndex, "index", "", "override the profile's index name")
	searchCmd.Flags().StringVar(&searchNamespace, "namespace", "", "override the profile's namespace")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "vector candidates to request (default from config)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "results to return (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.searchService().Search(cmd.Context(), usecase.SearchRequest{
		Query:     searchText,
		Model:     searchModel,
		Index:     searchIndex,
		Namespace: searchNamespace,
		TopK:      searchTopK,
		PageSize:  searchLimit,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		output, _ := json.MarshalIndent(resp.Results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if resp.Degraded != "" {
		fmt.Printf("Degraded: %s (%s)\n", resp.Degraded, resp.State)
	}
	if len(resp.Results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(resp.Results), searchText)
	for i, r := range resp.Results {
		match := string(r.MatchType)
		if match == "" {
			match = "listing"
		}
		fmt.Printf("[%d] #%d %s  $%s  (%s, score: %.3f)\n", i+1, r.ID, r.Name, r.Price, match, r.Score)
		desc := r.Description
		if len(desc) > 160 {
			desc = desc[:160] + "..."
		}
		if desc != "" {
			fmt.Printf("    %s\n", desc)
		}
	}
	return nil
}
