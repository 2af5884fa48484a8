package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	productsLimit int
	productsJSON  bool
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List stored products",
	RunE:  runProducts,
}

func init() {
	rootCmd.AddCommand(productsCmd)
	productsCmd.Flags().IntVarP(&productsLimit, "limit", "n", 20, "products to list (0 lists all)")
	productsCmd.Flags().BoolVar(&productsJSON, "json", false, "output as JSON")
}

func runProducts(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.searchService().List(cmd.Context(), productsLimit)
	if err != nil {
		return err
	}

	if productsJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	if len(results) == 0 {
		fmt.Println("No products. Run 'storefront seed' first.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("#%-6d %-40s $%-10s %s\n", r.ID, r.Name, r.Price, strings.Join(r.Categories, ", "))
	}
	return nil
}
