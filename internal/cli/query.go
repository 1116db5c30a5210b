package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/claimcheck/internal/report"
	"github.com/spf13/cobra"
)

var (
	topK         int
	outJSON      string
	outMD        string
	noFooter     bool
	queryTimeout time.Duration
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Decide a single claim query",
	Long: `Query extracts the claim facts from free text, retrieves the most
relevant policy clauses and prints the decision with its reasoning.

Example:
  claimcheck query "46M, knee surgery in Pune, 3-month policy"
  claimcheck query "cataract surgery Mumbai 2 year policy" --top-k 5
  claimcheck query "emergency appendix removal Delhi" --json result.json --md report.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().IntVar(&topK, "top-k", 0, "number of policy clauses to retrieve (default: retrieval.top_k)")
	queryCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	queryCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	queryCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 2*time.Minute, "overall query timeout")
}

func runQuery(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("query must not be empty")
	}

	a, err := setupApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	if !a.pipeline.Status(ctx).IsSetup {
		return fmt.Errorf("no policy document indexed; run 'claimcheck setup' first")
	}

	k := resolveTopK(a.cfg.Retrieval.TopK)
	if verbose {
		fmt.Fprintf(os.Stderr, "Query:  %s\n", query)
		fmt.Fprintf(os.Stderr, "Top-k:  %d\n", k)
		fmt.Fprintf(os.Stderr, "LLM:    %s/%s\n", a.cfg.LLM.Provider, a.cfg.LLM.Model)
		fmt.Fprintln(os.Stderr)
	}

	result, err := a.pipeline.Process(ctx, query, k)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	renderer := report.NewRenderer(!noFooter)
	renderer.RenderSummary(os.Stdout, result)

	if outJSON != "" {
		if err := renderer.RenderJSON(result, outJSON); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ JSON report: %s\n", outJSON)
	}
	if outMD != "" {
		if err := renderer.RenderMarkdown(result, outMD); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Markdown report: %s\n", outMD)
	}

	return nil
}

// resolveTopK prefers the --top-k flag, then the configured value.
func resolveTopK(configured int) int {
	if topK > 0 {
		return topK
	}
	if configured > 0 {
		return configured
	}
	return 3
}
