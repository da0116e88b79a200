package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/conclave/internal/config"
	"github.com/ppiankov/conclave/internal/history"
)

var (
	historyConfig string
	historyDB     string
	historyLimit  int
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyConfig, "config", "", "Path to engine config YAML")
	historyCmd.Flags().StringVar(&historyDB, "db", "", "Path to history database (overrides config)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of recent deliberations to show")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent deliberation outcomes",
	Long:  "Lists finalized deliberations from the history database, newest first.",
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := historyDB
	if path == "" {
		engine, err := config.Load(historyConfig)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = engine.HistoryDB
	}
	if path == "" {
		path = history.DefaultPath()
	}

	store, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	records, err := store.Recent(historyLimit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No deliberations recorded.")
		return nil
	}

	fmt.Printf("%-20s %-28s %-26s %-7s %-22s %-20s\n",
		"PROPOSAL", "TITLE", "DECISION", "ROUNDS", "CONDITIONALITY", "FINALIZED")
	for _, r := range records {
		title := r.ProposalTitle
		if len(title) > 26 {
			title = title[:26] + ".."
		}
		rounds := fmt.Sprintf("%d", r.Rounds)
		if r.Forced {
			rounds += "*"
		}
		verdict := r.CLAVerdict
		if verdict == "" {
			verdict = "-"
		}
		fmt.Printf("%-20s %-28s %-26s %-7s %-22s %-20s\n",
			r.ProposalID, title, r.Decision, rounds, verdict,
			r.FinalizedAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("* terminated at the round cap without consensus")

	return nil
}
