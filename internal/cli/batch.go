package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/ppiankov/claimcheck/internal/report"
	"github.com/ppiankov/claimcheck/internal/worker"
	"github.com/spf13/cobra"
)

var (
	concurrency  int
	batchOut     string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Decide many claim queries from a file in parallel",
	Long: `Batch processes claim queries concurrently:
- Read queries from input file (one per line, # starts a comment)
- Process queries in parallel with configurable worker count
- Keep results in input order; a failed query does not stop the batch
- Write all results to one JSON file

Example:
  claimcheck batch claims.txt
  claimcheck batch claims.txt --concurrency 4 --output results.json
  claimcheck batch claims.txt --top-k 5 --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&batchOut, "output", "claimcheck-batch.json", "output JSON path")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().IntVar(&topK, "top-k", 0, "number of policy clauses to retrieve per query")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	a, err := setupApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	if !a.pipeline.Status(ctx).IsSetup {
		return fmt.Errorf("no policy document indexed; run 'claimcheck setup' first")
	}
	k := resolveTopK(a.cfg.Retrieval.TopK)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  claimcheck Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Top-k:        %d\n", k)
	fmt.Fprintf(os.Stderr, "  Output:       %s\n", batchOut)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", a.cfg.LLM.Provider, a.cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "\n")

	processor := worker.NewBatchProcessor(a.pipeline, concurrency)

	fmt.Fprintf(os.Stderr, "⚙️  Processing queries with %d workers...\n\n", concurrency)
	items, err := processor.ProcessFile(ctx, file, k)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	successCount := 0
	failureCount := 0
	for _, item := range items {
		if !item.Success {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", item.Query, item.Error)
			continue
		}
		successCount++
		decision := "REJECTED"
		if item.Result.Verdict.Approved {
			decision = "APPROVED"
		}
		fmt.Fprintf(os.Stderr, "✓ %s: %s (%s)\n", item.Query, decision, item.Result.Verdict.Confidence)
	}

	renderer := report.NewRenderer(true)
	if err := renderer.RenderBatchJSON(items, batchOut); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d queries\n", len(items))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", batchOut)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}
