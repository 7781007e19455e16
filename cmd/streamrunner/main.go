// Command streamrunner is the streaming engine's process entrypoint:
// wires settings.yaml/strategies.yaml into the engine and runs it
// until SIGINT/SIGTERM.
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
	"paperrunner/internal/engine"
	"paperrunner/internal/logging"
	"paperrunner/internal/metrics"
	"paperrunner/internal/storeclient"
	"paperrunner/internal/storequeue"
	"paperrunner/internal/stream"
	"paperrunner/internal/tickbuffer"
)

var (
	configDir   string
	logLevel    string
	queuePath   string
	algorithmID string
)

const httpShutdownTimeout = 5 * time.Second

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "streamrunner",
	Short: "Runs the paper-trading streaming engine against Alpaca's WebSocket feed",
	RunE:  runStream,
}

func init() {
	rootCmd.Flags().StringVar(&configDir, "config", "config", "config directory containing settings.yaml and strategies.yaml")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARNING, ERROR)")
	rootCmd.Flags().StringVar(&queuePath, "queue-db", "streamrunner_queue.db", "path to the local durable trade queue database")
	rootCmd.Flags().StringVar(&algorithmID, "algorithm-id", "", "dashboard-store algorithm id this process's fills are recorded under")
}

func runStream(cmd *cobra.Command, args []string) error {
	logging.Configure(logging.Level(logLevel), os.Stderr)
	log := logging.For("main")
	metrics.Init()

	settings, err := config.LoadSettings(configDir + "/settings.yaml")
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	strategies, err := config.LoadStrategies(configDir + "/strategies.yaml")
	if err != nil {
		return fmt.Errorf("load strategies: %w", err)
	}
	if len(strategies) == 0 {
		return fmt.Errorf("no strategies loaded")
	}
	log.Infof("loaded %d strategies", len(strategies))

	streamClient := stream.NewClient(settings.Alpaca.APIKey, settings.Alpaca.SecretKey, settings.Alpaca.DataURL)

	restClient := alpacarest.NewClient(settings.Alpaca.APIKey, settings.Alpaca.SecretKey, settings.Alpaca.BaseURL, settings.Alpaca.DataURL)
	orders, err := alpacarest.NewOrderManager(restClient, alpacarest.Config{
		MaxOrdersPerMinute: settings.Safety.MaxOrdersPerMinute,
		CooldownSeconds:    settings.Safety.CooldownSeconds,
		MaxPositionPct:     settings.Safety.MaxPositionPct,
		PaperOnly:          settings.Safety.PaperOnly,
	})
	if err != nil {
		return fmt.Errorf("construct order manager: %w", err)
	}

	var store *storeclient.Client
	var queue *storequeue.Queue
	if settings.Dashboard.APIURL != "" {
		store = storeclient.NewClient(settings.Dashboard.APIURL, settings.Dashboard.APIKey)
		queue, err = storequeue.Open(queuePath)
		if err != nil {
			return fmt.Errorf("open trade queue: %w", err)
		}
		defer queue.Close()
	} else {
		log.Warnf("no dashboard.api_url configured; fills will not be recorded to the dashboard store")
	}

	buffer := tickbuffer.New(120)
	eng := engine.New(streamClient, orders, buffer, strategies, store, queue, algorithmID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{Addr: settings.HTTP.ListenAddr, Handler: eng.Router()}
	go func() {
		log.Infof("internal HTTP surface listening on %s", settings.HTTP.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("internal HTTP server error: %v", err)
		}
	}()

	runErr := eng.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)

	return runErr
}
