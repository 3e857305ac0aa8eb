package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Semantic governance engine for knowledge objects",
	Long:  "Aegis admits typed knowledge objects through a governance pipeline: schema validation, coherence and trust scoring, relation inference, and an append-only provenance ledger. Admitted objects decay and drift over time.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(admitCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(provenanceCmd)
	rootCmd.AddCommand(typesCmd)
}
