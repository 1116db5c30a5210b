package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	setupNoReset bool
	setupTimeout time.Duration
)

// setupCmd represents the setup command
var setupCmd = &cobra.Command{
	Use:   "setup [document]",
	Short: "Load a policy document into the vector index",
	Long: `Setup reads a policy document, splits it into section-tagged chunks and
indexes the chunks for retrieval. Supported formats: .txt, .md, .html.

Without an argument the configured ingest.document_path is used.

Example:
  claimcheck setup
  claimcheck setup data/raw/sample_policy.txt
  claimcheck setup policy.html --no-reset`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)

	setupCmd.Flags().BoolVar(&setupNoReset, "no-reset", false, "keep existing chunks (same ids are overwritten)")
	setupCmd.Flags().DurationVar(&setupTimeout, "timeout", 10*time.Minute, "timeout for embedding and indexing")
}

func runSetup(cmd *cobra.Command, args []string) error {
	a, err := setupApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	path := a.cfg.Ingest.DocumentPath
	if len(args) == 1 {
		path = args[0]
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), setupTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "⚙️  Indexing %s...\n", path)

	result, err := a.pipeline.Setup(ctx, path, !setupNoReset)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Setup Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Document:     %s (%d chars)\n", result.DocumentPath, result.DocumentChars)
	fmt.Fprintf(os.Stderr, "  Chunks:       %d\n", result.TotalChunks)
	fmt.Fprintf(os.Stderr, "  Indexed:      %d\n", result.DocumentsStored)
	fmt.Fprintf(os.Stderr, "  Avg length:   %.0f chars\n", result.Statistics.AvgChunkLength)
	fmt.Fprintf(os.Stderr, "  Sections:     %d\n", result.Statistics.UniqueSections)
	if result.ChunksPath != "" {
		fmt.Fprintf(os.Stderr, "  Chunks file:  %s\n", result.ChunksPath)
	}
	fmt.Fprintf(os.Stderr, "  Time:         %.2fs\n", result.SetupTimeSeconds)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}
