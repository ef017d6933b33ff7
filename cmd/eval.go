package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ndelia/snaplens/internal/config"
	"github.com/ndelia/snaplens/internal/eval"
	"github.com/ndelia/snaplens/internal/gemini"
	"github.com/ndelia/snaplens/internal/logging"
	"github.com/spf13/cobra"
)

func newEvalCmd() *cobra.Command {
	var (
		dataset     string
		limit       int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score identification accuracy against a labeled dataset",
		Long: `Runs the image analysis pipeline over a labeled dataset and reports how
often the generated smart-card title matches the expected label.

The dataset is a Parquet or JSONL file with image_path and label columns;
relative image paths are resolved against the dataset file's directory.`,
		Example: `  # Evaluate against a parquet dataset
  snaplens eval --dataset testdata/landmarks.parquet

  # Limit to 20 images with 4 workers
  snaplens eval --dataset labels.jsonl --limit 20 --concurrency 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel)

			if cfg.GeminiAPIKey == "" {
				slog.Warn("GEMINI_API_KEY is not set; every analysis will fall back")
			}

			client := gemini.New(cfg.GeminiAPIKey, cfg.Model)
			summary, results, err := eval.Run(cmd.Context(), client, dataset, limit, concurrency)
			if err != nil {
				return err
			}

			for _, r := range results {
				switch {
				case r.Err != nil:
					fmt.Printf("ERROR  %-40s %v\n", r.ImagePath, r.Err)
				case r.Match:
					fmt.Printf("MATCH  %-40s %q\n", r.ImagePath, r.Title)
				case r.Entity:
					fmt.Printf("MISS   %-40s got %q, want %q\n", r.ImagePath, r.Title, r.Label)
				default:
					fmt.Printf("NONE   %-40s no entity detected, want %q\n", r.ImagePath, r.Label)
				}
			}
			summary.Print()
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "Path to the labeled dataset (.parquet or .jsonl)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of records to evaluate (0 = all)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Number of concurrent analysis calls")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}
