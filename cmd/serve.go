package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ndelia/snaplens/internal/config"
	"github.com/ndelia/snaplens/internal/handlers"
	"github.com/ndelia/snaplens/internal/logging"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the snaplens web server",
		Long: `Starts the snaplens scanner interface on the specified address.

The web interface captures photos from the device camera, identifies the
subject with a vision-capable LLM, and lets you chat about the photo with
search-grounded answers.`,
		Example: `  # Start server on default address :8888
  snaplens serve

  # Start server on a custom address
  snaplens serve --addr :3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			logging.Setup(cfg.LogLevel)

			if cfg.GeminiAPIKey == "" {
				slog.Warn("GEMINI_API_KEY is not set; analysis and Q&A requests will fail")
			}

			handler := handlers.New(cfg)

			// Set up routes
			mux := http.NewServeMux()
			mux.HandleFunc("/api/photos", handler.HandlePhotos)
			mux.HandleFunc("/api/photos/", handler.HandlePhotoDetail)
			mux.HandleFunc("/api/active", handler.HandleActive)
			mux.HandleFunc("/", handler.HandleStatic)
			mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})

			server := &http.Server{
				Addr:    cfg.ListenAddr,
				Handler: mux,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Snaplens interface available", "addr", cfg.ListenAddr, "url", "http://localhost"+cfg.ListenAddr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (overrides config)")

	return cmd
}
