package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/recibo/internal/ocr"
	"github.com/MeKo-Tech/recibo/internal/pipeline"
	"github.com/MeKo-Tech/recibo/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP receipt-scanning API",
	Long: `Start an HTTP server exposing the extraction pipeline.

Endpoints:
  POST /scan     - Extract line items from an uploaded receipt image
  GET  /ws/scan  - WebSocket variant with per-stage progress events
  GET  /health   - Health check
  GET  /metrics  - Prometheus metrics

Examples:
  recibo serve
  recibo serve --port 8080
  recibo serve --host 0.0.0.0 --port 3000 --rate-limit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
		}
		corsOrigin := cfg.Server.CORSOrigin
		if cmd.Flags().Changed("cors-origin") {
			corsOrigin, _ = cmd.Flags().GetString("cors-origin")
		}
		maxUploadMB := cfg.Server.MaxUploadMB
		if cmd.Flags().Changed("max-upload-size") {
			maxUploadMB, _ = cmd.Flags().GetInt("max-upload-size")
		}
		shutdownTimeout := cfg.Server.ShutdownTimeout
		if cmd.Flags().Changed("shutdown-timeout") {
			shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
		}

		var rateLimit *server.RateLimitConfig
		if enabled, _ := cmd.Flags().GetBool("rate-limit"); enabled {
			rpm, _ := cmd.Flags().GetInt("requests-per-minute")
			dataPerDay, _ := cmd.Flags().GetInt64("max-data-per-day")
			rateLimit = &server.RateLimitConfig{
				RequestsPerMinute: rpm,
				MaxDataPerDay:     dataPerDay,
			}
		}

		engine := ocr.NewTesseractEngine(
			ocr.WithLanguage(cfg.OCR.Language),
			ocr.WithTessdataPrefix(cfg.OCR.TessdataPrefix),
		)
		defer func() { _ = engine.Close() }()

		plCfg := cfg.ToPipelineConfig()
		pl := pipeline.NewBuilder().WithConfig(plCfg).WithEngine(engine).Build()

		// The websocket endpoint needs a pipeline per connection so stage
		// progress can stream back to that client.
		factory := func(progress func(stage string)) server.Processor {
			return pipeline.NewBuilder().
				WithConfig(plCfg).
				WithEngine(engine).
				WithProgress(progress).
				Build()
		}

		serverConfig := server.Config{
			Host:            host,
			Port:            port,
			CORSOrigin:      corsOrigin,
			MaxUploadMB:     int64(maxUploadMB),
			ShutdownTimeout: time.Duration(shutdownTimeout) * time.Second,
			RateLimit:       rateLimit,
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return server.Run(ctx, serverConfig, pl, factory)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "0.0.0.0", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 5, "maximum upload size in MB")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("rate-limit", false, "enable per-client rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 30, "maximum requests per minute per client")
	serveCmd.Flags().Int64("max-data-per-day", 100*1024*1024, "maximum data processed per day per client (bytes)")
}
