package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/recibo/internal/ocr"
	"github.com/MeKo-Tech/recibo/internal/pipeline"
	"github.com/MeKo-Tech/recibo/internal/receipt"
)

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan [image]",
	Short: "Extract line items from a receipt photo",
	Long: `Run the extraction pipeline on a receipt photo and print the parsed
receipt.

Examples:
  recibo scan receipt.jpg
  recibo scan receipt.jpg --format text
  recibo scan receipt.jpg --auto-correct`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}

		autoCorrect := cfg.Pipeline.AutoApplyCorrections
		if cmd.Flags().Changed("auto-correct") {
			autoCorrect, _ = cmd.Flags().GetBool("auto-correct")
		}

		engine := ocr.NewTesseractEngine(
			ocr.WithLanguage(cfg.OCR.Language),
			ocr.WithTessdataPrefix(cfg.OCR.TessdataPrefix),
		)
		defer func() { _ = engine.Close() }()

		pl := pipeline.NewBuilder().
			WithConfig(cfg.ToPipelineConfig()).
			WithEngine(engine).
			WithAutoApplyCorrections(autoCorrect).
			Build()

		parsed, err := pl.Process(context.Background(), receipt.Image{Data: data})
		if err != nil {
			return fmt.Errorf("extraction failed: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "text":
			printReceiptText(cmd, parsed)
		default:
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(parsed); err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
		}
		return nil
	},
}

func printReceiptText(cmd *cobra.Command, parsed *receipt.ParsedReceipt) {
	out := cmd.OutOrStdout()
	if parsed.Merchant != "" {
		fmt.Fprintf(out, "Merchant: %s\n", parsed.Merchant)
	}
	if parsed.Date != "" {
		fmt.Fprintf(out, "Date: %s\n", parsed.Date)
	}
	for _, item := range parsed.Items {
		flag := ""
		if item.NeedsReview {
			reasons := make([]string, 0, len(item.ReviewReasons))
			for _, r := range item.ReviewReasons {
				reasons = append(reasons, r.Render())
			}
			flag = "  [review: " + strings.Join(reasons, "; ") + "]"
		}
		fmt.Fprintf(out, "%dx %-30s %8s%s\n", item.Quantity, item.Name, item.LineTotal.StringFixed(2), flag)
	}
	if parsed.Total != nil {
		fmt.Fprintf(out, "Total: %s\n", parsed.Total.StringFixed(2))
	}
	fmt.Fprintf(out, "Confidence: %.2f\n", parsed.Confidence)
	if parsed.NeedsManualEntry {
		fmt.Fprintln(out, "Needs manual entry")
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringP("format", "f", "json", "output format: json or text")
	scanCmd.Flags().Bool("auto-correct", false, "apply confident amount corrections automatically")
}
