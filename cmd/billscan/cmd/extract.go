package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/MeKo-Tech/billscan/internal/billing"
	"github.com/MeKo-Tech/billscan/internal/config"
	"github.com/MeKo-Tech/billscan/internal/document"
	"github.com/MeKo-Tech/billscan/internal/extract"
	"github.com/MeKo-Tech/billscan/internal/pipeline"
	"github.com/spf13/cobra"
)

// extractCmd processes a single bill document.
var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract line items from a bill document",
	Long: `Extract structured line items from a scanned hospital bill.

The input is a local PDF or image file, or a URL given with --url. The
result envelope is printed as JSON to stdout or written to --output.

Examples:
  billscan extract bill.pdf
  billscan extract scan.jpg --output result.json
  billscan extract --url https://example.com/bill.pdf`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().String("url", "", "download the bill from a URL instead of a local file")
	extractCmd.Flags().StringP("output", "o", "", "write the result JSON to a file instead of stdout")
	extractCmd.Flags().Bool("progress", false, "print page progress to stderr")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	url, _ := cmd.Flags().GetString("url")
	if url == "" && len(args) == 0 {
		return fmt.Errorf("either a file argument or --url is required")
	}
	if url != "" && len(args) > 0 {
		return fmt.Errorf("a file argument and --url are mutually exclusive")
	}

	ctx := cmd.Context()
	data, err := loadDocument(ctx, cfg, url, args)
	if err != nil {
		return err
	}

	pl, err := buildPipeline(cmd, cfg)
	if err != nil {
		return err
	}

	result, err := pl.Process(ctx, data)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	envelope := map[string]interface{}{
		"is_success":  true,
		"token_usage": result.Usage,
		"data": map[string]interface{}{
			"pagewise_line_items": result.Extraction.PagewiseLineItems,
			"total_item_count":    result.Extraction.TotalItemCount,
		},
	}
	if len(result.Extraction.ValidationIssues) > 0 {
		envelope["validation_issues"] = result.Extraction.ValidationIssues
	}
	if len(result.Extraction.Duplicates) > 0 {
		envelope["duplicates"] = result.Extraction.Duplicates
	}

	out, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath != "" {
		if err := os.WriteFile(outputPath, append(out, '\n'), 0o600); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Result written to %s (%d items, %.2f total)\n",
			outputPath,
			result.Extraction.TotalItemCount,
			billing.GrandTotal(result.Extraction.PagewiseLineItems))
		return nil
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func loadDocument(ctx context.Context, cfg *config.Config, url string, args []string) ([]byte, error) {
	if url != "" {
		dl := document.NewDownloader(document.DownloaderOptions{
			MaxRetries:  cfg.Download.MaxRetries,
			Timeout:     time.Duration(cfg.Download.TimeoutSec) * time.Second,
			BackoffBase: time.Duration(cfg.Download.BackoffBaseSec) * time.Second,
			MaxBytes:    cfg.Download.MaxFileSizeMB * 1024 * 1024,
		})
		return dl.Download(ctx, url)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	return data, nil
}

// buildPipeline assembles the extraction pipeline from the configuration.
func buildPipeline(cmd *cobra.Command, cfg *config.Config) (*pipeline.Pipeline, error) {
	if cfg.Extractor.APIKey == "" {
		return nil, fmt.Errorf("extractor API key is not configured (set BILLSCAN_EXTRACTOR_API_KEY)")
	}

	extractor := extract.NewClaudeExtractor(extract.Options{
		APIKey:    cfg.Extractor.APIKey,
		Model:     cfg.Extractor.Model,
		Endpoint:  cfg.Extractor.Endpoint,
		MaxTokens: cfg.Extractor.MaxTokens,
		Timeout:   time.Duration(cfg.Extractor.TimeoutSec) * time.Second,
	})

	builder := pipeline.NewBuilder().
		WithConfig(pipelineConfig(cfg)).
		WithExtractor(extractor)

	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		builder = builder.WithProgress(pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "extract"))
	}
	return builder.Build()
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	pc := pipeline.DefaultConfig()
	if cfg.Pipeline.DPI > 0 {
		pc.DPI = cfg.Pipeline.DPI
	}
	if cfg.Pipeline.AmountTolerance > 0 {
		pc.AmountTolerance = cfg.Pipeline.AmountTolerance
	}
	if cfg.Pipeline.WhitePatchRatio > 0 {
		pc.WhitePatchRatio = cfg.Pipeline.WhitePatchRatio
	}
	if cfg.Pipeline.ContourThreshold > 0 {
		pc.ContourThreshold = cfg.Pipeline.ContourThreshold
	}
	if cfg.Pipeline.MaxWorkers > 0 {
		pc.MaxWorkers = cfg.Pipeline.MaxWorkers
	}
	if len(cfg.OCR.Languages) > 0 {
		pc.Languages = cfg.OCR.Languages
	}
	if cfg.OCR.PSM > 0 {
		pc.PSM = cfg.OCR.PSM
	}
	return pc
}
