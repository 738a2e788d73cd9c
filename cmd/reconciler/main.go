package main

import (
	"os"

	"github.com/alfredjeanlab/reconciler/internal/ui"
	"github.com/spf13/cobra"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:          "reconciler <command>",
	Short:        "Grant allowlist access for marketplace purchases",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "service", Title: "Service:"},
		&cobra.Group{ID: "inspect", Title: "Inspect:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Service
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)

	// Inspect
	rootCmd.AddCommand(addressCmd)
	rootCmd.AddCommand(attemptsCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
