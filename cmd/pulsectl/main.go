package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pulsefeed/pulse/cmd/pulsectl/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "pulsectl",
		Short: "Admin tool for the Pulse feed engine",
		Long:  "CLI tool for inspecting feed snapshots, forcing regenerations and checking pricing",
	}

	rootCmd.AddCommand(commands.NewFeedCmd())
	rootCmd.AddCommand(commands.NewPricingCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
