package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pulsefeed/pulse/internal/config"
	"github.com/pulsefeed/pulse/internal/feed"
)

// NewPricingCmd creates the pricing command
func NewPricingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pricing",
		Short: "Print the effective model price table",
		Long:  "Print the price table the workers use for cost estimates, after applying PRICE_TABLE_PATH",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			table := feed.DefaultPriceTable()
			source := "built-in"
			if cfg.PriceTablePath != "" {
				table, err = feed.LoadPriceTable(cfg.PriceTablePath)
				if err != nil {
					return fmt.Errorf("failed to load price table: %w", err)
				}
				source = cfg.PriceTablePath
			}

			fmt.Printf("Price table (%s), USD per million tokens:\n\n", source)

			names := make([]string, 0, len(table.Models))
			for name := range table.Models {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				printModelPrice(name, table.Models[name])
			}
			printModelPrice("(default)", table.Default)

			return nil
		},
	}
}

func printModelPrice(name string, p feed.ModelPrice) {
	fmt.Printf("  %s\n", name)
	fmt.Printf("    input:        %8.3f\n", p.InputPerMTok)
	fmt.Printf("    cached input: %8.3f\n", p.CachedInputPerMTok)
	fmt.Printf("    output:       %8.3f\n", p.OutputPerMTok)
}
