package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snaplens",
		Short: "Point-and-ask photo scanner backed by a multimodal LLM",
		Long: `Snaplens is a camera-first web app for identifying whatever you point
your phone at. Captured photos are analyzed by a vision-capable LLM to produce a
smart card (title, description, key facts) plus suggested follow-up questions,
and you can keep asking about the photo with search-grounded answers.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newEvalCmd())

	return cmd
}
