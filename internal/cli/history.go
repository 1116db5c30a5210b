package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ppiankov/claimcheck/internal/history"
	"github.com/spf13/cobra"
)

var (
	historyLimit     int
	historyOffset    int
	historyJSON      bool
	historyAnalytics bool
	historyID        string
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent claim queries",
	Long: `History lists processed queries newest first, or prints approval
analytics with --analytics.

Example:
  claimcheck history
  claimcheck history --limit 10 --offset 20
  claimcheck history --analytics --json
  claimcheck history --id 0b9c6c1e-8f4e-4d2a-9a55-2f1f3c7e4b10`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", history.DefaultListLimit, "entries to show")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "entries to skip")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON")
	historyCmd.Flags().BoolVar(&historyAnalytics, "analytics", false, "print aggregate figures instead of entries")
	historyCmd.Flags().StringVar(&historyID, "id", "", "print one entry with its full result as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled (history.enabled: false)")
	}

	store, err := history.Open(cfg.History.Path, cfg.History.MaxEntries)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	if historyID != "" {
		entry, err := store.Get(ctx, historyID)
		if err != nil {
			return err
		}
		return printJSON(entry)
	}

	if historyAnalytics {
		a, err := store.Analytics(ctx)
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(a)
		}
		fmt.Printf("Total queries:     %d\n", a.TotalQueries)
		fmt.Printf("Approved:          %d\n", a.ApprovedCount)
		fmt.Printf("Rejected:          %d\n", a.RejectedCount)
		fmt.Printf("Approval rate:     %.2f%%\n", a.ApprovalRate)
		fmt.Printf("Avg time:          %.3fs\n", a.AvgProcessingTimeSeconds)
		fmt.Printf("Served from cache: %d\n", a.CacheHits)
		return nil
	}

	entries, err := store.List(ctx, historyLimit, historyOffset, historyJSON)
	if err != nil {
		return err
	}
	if historyJSON {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "No queries recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tDECISION\tCONFIDENCE\tCACHED\tQUERY")
	for _, e := range entries {
		decision := "REJECTED"
		if e.Approved {
			decision = "APPROVED"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), decision, e.Confidence, e.FromCache, e.Query)
	}
	return tw.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
