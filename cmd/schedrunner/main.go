// Command schedrunner is the scheduled engine's process entrypoint:
// evaluates daily-bar strategies against a per-algorithm cash ledger
// roughly once a minute, backed by the dashboard store instead of the
// broker's own equity/position model. Grounded on
// original_source/trading-engine/src/entry.py's on_scheduled cron
// handler, adapted from a serverless cron trigger to an in-process
// ticker loop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"paperrunner/internal/alpacarest"
	"paperrunner/internal/config"
	"paperrunner/internal/logging"
	"paperrunner/internal/metrics"
	"paperrunner/internal/schedengine"
	"paperrunner/internal/storeclient"
	"paperrunner/internal/storequeue"
)

var (
	dotenvPath string
	listenAddr string
	logLevel   string
	interval   time.Duration
	queuePath  string
)

const httpShutdownTimeout = 5 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "schedrunner",
	Short: "Runs the paper-trading scheduled engine against Alpaca's daily bars",
	RunE:  runScheduled,
}

func init() {
	rootCmd.Flags().StringVar(&dotenvPath, "env-file", ".env", "path to a .env file (missing file is not an error)")
	rootCmd.Flags().StringVar(&listenAddr, "listen", ":8081", "address for the /health, /status, /test, /run HTTP surface")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARNING, ERROR)")
	rootCmd.Flags().DurationVar(&interval, "interval", time.Minute, "cadence between scheduled runs")
	rootCmd.Flags().StringVar(&queuePath, "queue-db", "schedrunner_queue.db", "path to the local durable trade queue database")
}

func runScheduled(cmd *cobra.Command, args []string) error {
	logging.Configure(logging.Level(logLevel), os.Stderr)
	log := logging.For("main")
	metrics.Init()

	if err := config.LoadDotenv(dotenvPath); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	apiKey := os.Getenv("ALPACA_API_KEY")
	secretKey := os.Getenv("ALPACA_SECRET_KEY")
	if apiKey == "" || secretKey == "" {
		return fmt.Errorf("ALPACA_API_KEY and ALPACA_SECRET_KEY must be set")
	}
	baseURL := os.Getenv("ALPACA_BASE_URL")
	if baseURL == "" {
		baseURL = "https://paper-api.alpaca.markets"
	}
	dataURL := os.Getenv("ALPACA_DATA_URL")
	if dataURL == "" {
		dataURL = "https://data.alpaca.markets"
	}
	dashboardURL := os.Getenv("DASHBOARD_API_URL")
	if dashboardURL == "" {
		return fmt.Errorf("DASHBOARD_API_URL must be set")
	}
	dashboardKey := os.Getenv("DASHBOARD_API_KEY")

	queue, err := storequeue.Open(queuePath)
	if err != nil {
		return fmt.Errorf("open trade queue: %w", err)
	}
	defer queue.Close()

	broker := alpacarest.NewClient(apiKey, secretKey, baseURL, dataURL)
	store := storeclient.NewClient(dashboardURL, dashboardKey)
	eng := schedengine.New(broker, store, queue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{Addr: listenAddr, Handler: eng.Router()}
	go func() {
		log.Infof("internal HTTP surface listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("internal HTTP server error: %v", err)
		}
	}()

	runErr := runLoop(ctx, log, eng)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)

	return runErr
}

// runLoop drives RunOnce on a fixed cadence until ctx is cancelled,
// mirroring entry.py's on_scheduled being invoked by an external cron
// trigger, but with the trigger itself owned in-process.
func runLoop(ctx context.Context, log *logging.Logger, eng *schedengine.Engine) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("scheduled engine running with interval=%s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Infof("shutting down scheduled engine")
			return nil
		case now := <-ticker.C:
			if err := eng.RunOnce(ctx, now); err != nil {
				log.Errorf("scheduled run failed: %v", err)
			}
		}
	}
}
