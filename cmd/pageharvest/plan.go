package main

import (
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "List manifest items that have no artifact yet",
	Long: `Compare the manifest with the artifact directory and print the items a
harvest would fetch, in order. Nothing is fetched and no session is needed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun = true
		return runHarvest(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "work manifest (JSON or YAML)")
	planCmd.Flags().StringVar(&idField, "id-field", "", "manifest field holding the item id")
	planCmd.Flags().StringVarP(&artifactsDir, "artifacts", "o", "", "artifact output directory")
}
