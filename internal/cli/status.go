package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index, provider and cache status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx := cmd.Context()
		status := a.pipeline.Status(ctx)
		stats, err := a.store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("store stats: %w", err)
		}

		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println("  claimcheck Status")
		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println()
		fmt.Printf("  Setup:         %v\n", status.IsSetup)
		fmt.Printf("  Documents:     %d\n", status.TotalDocuments)
		fmt.Printf("  Collection:    %s\n", stats.CollectionName)
		if stats.PersistPath != "" {
			fmt.Printf("  Index path:    %s\n", stats.PersistPath)
		}
		if len(stats.SampleSections) > 0 {
			fmt.Printf("  Sections:      %v\n", stats.SampleSections)
		}
		fmt.Printf("  LLM:           %s/%s\n", status.LLMProvider, status.LLMModel)
		fmt.Printf("  LLM reachable: %v\n", a.pipeline.ProviderAvailable(ctx))
		fmt.Printf("  Locations:     %d\n", status.SupportedLocations)
		fmt.Printf("  Procedures:    %d\n", status.SupportedProcedures)
		if a.cache != nil {
			cs := a.cache.Stats()
			fmt.Printf("  Cache:         %d/%d entries, ttl %.0fs\n", cs.Entries, cs.MaxEntries, cs.TTLSeconds)
		} else {
			fmt.Printf("  Cache:         disabled\n")
		}
		if a.history != nil {
			fmt.Printf("  History:       %s\n", a.history.Path())
		} else {
			fmt.Printf("  History:       disabled\n")
		}
		fmt.Println()

		if !status.IsSetup {
			fmt.Fprintf(os.Stderr, "No policy document indexed. Run 'claimcheck setup' first.\n")
		}
		return nil
	},
}

var testLLMTimeout time.Duration

// testLLMCmd represents the test-llm command
var testLLMCmd = &cobra.Command{
	Use:   "test-llm",
	Short: "Check that the reasoning service answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), testLLMTimeout)
		defer cancel()

		fmt.Fprintf(os.Stderr, "⚙️  Testing %s/%s...\n", a.cfg.LLM.Provider, a.cfg.LLM.Model)
		if !a.pipeline.TestConnection(ctx) {
			return fmt.Errorf("reasoning service %s is not responding", a.cfg.LLM.Provider)
		}
		fmt.Fprintf(os.Stderr, "✓ Reasoning service is working\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(testLLMCmd)

	testLLMCmd.Flags().DurationVar(&testLLMTimeout, "timeout", time.Minute, "connection test timeout")
}
