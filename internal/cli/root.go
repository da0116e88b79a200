package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conclave",
	Short: "Bounded multi-round deliberation engine",
	Long: "Deliberates proposals through a fixed evaluator roster under a hard round\n" +
		"cap. Tier-one and values blocks are non-compensatory: no score outweighs\n" +
		"them, only an explicit waiver. Every deliberation terminates.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
