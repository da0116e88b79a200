package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/conclave/internal/waiver"
)

var (
	wvGrantedBy  string
	wvReason     string
	wvMitigation string
	wvEvaluators []string
	wvRedLines   []string
	wvMarkets    []string
	wvIndustries []string
	wvSizes      []string
	wvReview     time.Duration
	wvExpires    time.Duration
	wvDir        string
)

func init() {
	rootCmd.AddCommand(waiverCmd)
	waiverCmd.AddCommand(waiverListCmd)
	waiverCmd.AddCommand(waiverRevokeCmd)
	waiverCmd.Flags().StringVar(&wvGrantedBy, "granted-by", "", "Identity of the granting authority")
	waiverCmd.Flags().StringVar(&wvReason, "reason", "", "Why the block is being waived (required)")
	waiverCmd.Flags().StringVar(&wvMitigation, "mitigation", "", "Promised mitigation for the waived concern (required)")
	waiverCmd.Flags().StringSliceVar(&wvEvaluators, "evaluators", nil, "Evaluator IDs the waiver covers (required)")
	waiverCmd.Flags().StringSliceVar(&wvRedLines, "red-lines", nil, "Red line IDs the waiver covers")
	waiverCmd.Flags().StringSliceVar(&wvMarkets, "markets", nil, "Restrict the waiver to these markets")
	waiverCmd.Flags().StringSliceVar(&wvIndustries, "industries", nil, "Restrict the waiver to these industries")
	waiverCmd.Flags().StringSliceVar(&wvSizes, "company-sizes", nil, "Restrict the waiver to these company sizes")
	waiverCmd.Flags().DurationVar(&wvReview, "review", 30*24*time.Hour, "Time until the mandatory review date")
	waiverCmd.Flags().DurationVar(&wvExpires, "expires", 0, "Validity period (0 = no expiry)")
	waiverCmd.PersistentFlags().StringVar(&wvDir, "dir", "", "Waiver store directory (default ~/.conclave/waivers)")
}

var waiverCmd = &cobra.Command{
	Use:   "waiver",
	Short: "Grant a waiver covering a tier-one or values block",
	Long: "Creates a durable waiver record that lets deliberations proceed past a\n" +
		"specific evaluator's BLOCK. A waiver names who granted it, why, what\n" +
		"mitigation was promised, and when it must be reviewed. Matching is\n" +
		"strict: wrong evaluator, wrong scope, or past expiry means no match.",
	RunE: runWaiverGrant,
}

var waiverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all waiver records",
	RunE:  runWaiverList,
}

var waiverRevokeCmd = &cobra.Command{
	Use:   "revoke [waiver-id]",
	Short: "Revoke a waiver",
	Args:  cobra.ExactArgs(1),
	RunE:  runWaiverRevoke,
}

func waiverStoreDir() string {
	if wvDir != "" {
		return wvDir
	}
	return waiver.DefaultDir()
}

func runWaiverGrant(cmd *cobra.Command, args []string) error {
	if wvReason == "" {
		return fmt.Errorf("--reason is required")
	}
	if wvMitigation == "" {
		return fmt.Errorf("--mitigation is required")
	}
	if len(wvEvaluators) == 0 {
		return fmt.Errorf("--evaluators is required")
	}

	store, err := waiver.NewStore(waiverStoreDir())
	if err != nil {
		return fmt.Errorf("failed to open waiver store: %w", err)
	}

	w := waiver.Waiver{
		GrantedBy:          wvGrantedBy,
		Reason:             wvReason,
		PromisedMitigation: wvMitigation,
		ReviewDate:         time.Now().UTC().Add(wvReview),
		LinkedEvaluatorIDs: wvEvaluators,
		LinkedRedLines:     wvRedLines,
		Scope: waiver.Scope{
			Markets:      wvMarkets,
			Industries:   wvIndustries,
			CompanySizes: wvSizes,
		},
	}
	if wvExpires > 0 {
		expiry := time.Now().UTC().Add(wvExpires)
		w.ExpiryDate = &expiry
	}

	granted, err := store.Grant(w)
	if err != nil {
		return err
	}

	fmt.Printf("Waiver granted: %s\n", granted.ID)
	fmt.Printf("Covers:  %v\n", granted.LinkedEvaluatorIDs)
	fmt.Printf("Review:  %s\n", granted.ReviewDate.Format(time.RFC3339))
	if granted.ExpiryDate != nil {
		fmt.Printf("Expires: %s\n", granted.ExpiryDate.Format(time.RFC3339))
	} else {
		fmt.Println("Expires: never (revoke when the mitigation lands)")
	}

	return nil
}

func runWaiverList(cmd *cobra.Command, args []string) error {
	store, err := waiver.NewStore(waiverStoreDir())
	if err != nil {
		return fmt.Errorf("failed to open waiver store: %w", err)
	}

	waivers, err := store.List()
	if err != nil {
		return err
	}

	if len(waivers) == 0 {
		fmt.Println("No waivers.")
		return nil
	}

	now := time.Now().UTC()
	fmt.Printf("%-20s %-10s %-20s %-30s %-25s\n", "ID", "STATUS", "EVALUATORS", "REASON", "REVIEW")
	for _, w := range waivers {
		status := string(w.Status)
		if w.Status == waiver.StatusActive && !w.IsActive(now) {
			status = "expired"
		}

		evaluators := fmt.Sprintf("%v", w.LinkedEvaluatorIDs)
		if len(evaluators) > 18 {
			evaluators = evaluators[:18] + ".."
		}
		reason := w.Reason
		if len(reason) > 28 {
			reason = reason[:28] + ".."
		}

		fmt.Printf("%-20s %-10s %-20s %-30s %-25s\n",
			w.ID, status, evaluators, reason, w.ReviewDate.Format(time.RFC3339))
	}

	return nil
}

func runWaiverRevoke(cmd *cobra.Command, args []string) error {
	store, err := waiver.NewStore(waiverStoreDir())
	if err != nil {
		return fmt.Errorf("failed to open waiver store: %w", err)
	}

	if err := store.Revoke(args[0]); err != nil {
		return err
	}

	fmt.Printf("Revoked waiver %s\n", args[0])
	return nil
}
