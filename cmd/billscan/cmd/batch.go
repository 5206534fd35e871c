package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// batchCmd processes multiple bill documents concurrently.
var batchCmd = &cobra.Command{
	Use:   "batch [files...]",
	Short: "Extract line items from many bill documents",
	Long: `Process multiple bill documents and write one result JSON per input
into the output directory.

Examples:
  billscan batch bills/*.pdf
  billscan batch a.pdf b.pdf --output-dir results/ --workers 4
  billscan batch bills/*.pdf --continue-on-error`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().String("output-dir", "", "directory for result files (default from config)")
	batchCmd.Flags().Int("workers", 0, "number of documents processed in parallel (default from config)")
	batchCmd.Flags().Bool("continue-on-error", false, "keep going when a document fails")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	outputDir := cfg.Batch.OutputDir
	if cmd.Flags().Changed("output-dir") {
		outputDir, _ = cmd.Flags().GetString("output-dir")
	}
	if outputDir == "" {
		outputDir = "."
	}
	workers := cfg.Batch.Workers
	if cmd.Flags().Changed("workers") {
		workers, _ = cmd.Flags().GetInt("workers")
	}
	if workers < 1 {
		workers = 1
	}
	continueOnError := cfg.Batch.ContinueOnError
	if cmd.Flags().Changed("continue-on-error") {
		continueOnError, _ = cmd.Flags().GetBool("continue-on-error")
	}

	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	pl, err := buildPipeline(cmd, cfg)
	if err != nil {
		return err
	}

	var succeeded, failed atomic.Int64

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(workers)
	for _, path := range args {
		g.Go(func() error {
			err := func() error {
				data, err := os.ReadFile(path) //nolint:gosec // user-supplied CLI argument
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				result, err := pl.Process(ctx, data)
				if err != nil {
					return fmt.Errorf("processing %s: %w", path, err)
				}
				out, err := json.MarshalIndent(map[string]interface{}{
					"is_success":  true,
					"token_usage": result.Usage,
					"data": map[string]interface{}{
						"pagewise_line_items": result.Extraction.PagewiseLineItems,
						"total_item_count":    result.Extraction.TotalItemCount,
					},
				}, "", "  ")
				if err != nil {
					return fmt.Errorf("encoding result for %s: %w", path, err)
				}
				outPath := filepath.Join(outputDir, resultFilename(path))
				if err := os.WriteFile(outPath, append(out, '\n'), 0o600); err != nil {
					return fmt.Errorf("writing %s: %w", outPath, err)
				}
				slog.Info("document processed", "input", path, "output", outPath,
					"items", result.Extraction.TotalItemCount)
				return nil
			}()
			if err != nil {
				failed.Add(1)
				if continueOnError {
					slog.Error("document failed", "input", path, "error", err)
					return nil
				}
				return err
			}
			succeeded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Batch complete: %d succeeded, %d failed\n",
		succeeded.Load(), failed.Load())
	if failed.Load() > 0 {
		return fmt.Errorf("%d document(s) failed", failed.Load())
	}
	return nil
}

// resultFilename maps an input path to its result file name.
func resultFilename(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + ".json"
}
