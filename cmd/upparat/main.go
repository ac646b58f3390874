// upparat — on-device update agent. Слушает job-control канал
// по MQTT, скачивает и устанавливает обновления через внешние
// пользовательские hook-и, отчитывается о прогрессе и исходе в cloud.
//
// Использование:
//
//	upparat -c /etc/upparat/config.yaml [-v]
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/upparat/internal/bus"
	"github.com/shaiso/upparat/internal/config"
	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/statemachine"
	"github.com/shaiso/upparat/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

const shutdownTimeout = 5 * time.Second

func main() {
	var configFile string
	var verbose bool
	var thingName string
	var metricsAddr string

	rootCmd := &cobra.Command{
		Use:           "upparat",
		Short:         "upparat — on-device update agent",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile, verbose, thingName, metricsAddr)
		},
	}

	rootCmd.Flags().StringVarP(&configFile, "config-file", "c", "", "path to configuration file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "force log level DEBUG, overriding configuration")
	rootCmd.Flags().StringVarP(&thingName, "thing-name", "t", "", "override device identity")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":8090", "address for /healthz and /metrics")

	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func run(configFileFlag string, verboseFlag bool, thingNameFlag string, metricsAddr string) error {
	logger := telemetry.SetupLogger()

	path, err := config.ResolvePath(configFileFlag)
	if err != nil {
		return err
	}
	verbose := config.ResolveVerbose(verboseFlag)

	cfg, err := config.Load(path, verbose, thingNameFlag)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if verbose {
		os.Setenv("LOG_LEVEL", "DEBUG")
		logger = telemetry.SetupLogger()
	}
	logger.Info("configuration loaded", "config_file", path, "thing_name", cfg.Broker.ThingName)
	logger.Info("sentry reporting", "configured", cfg.Service.Sentry != "")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	box := inbox.New()

	busClient, err := bus.NewClient(bus.Config{
		Host:     cfg.Broker.Host,
		Port:     cfg.Broker.Port,
		ClientID: cfg.Broker.ClientID,
		CAFile:   cfg.Broker.CAFile,
		CertFile: cfg.Broker.CertFile,
		KeyFile:  cfg.Broker.KeyFile,
	}, logger, box)
	if err != nil {
		return fmt.Errorf("bus client: %w", err)
	}

	if err := busClient.Run(); err != nil {
		return fmt.Errorf("bus connect: %w", err)
	}
	defer busClient.Disconnect()

	env := &statemachine.Env{
		Ctx:    ctx,
		Bus:    busClient,
		Cfg:    cfg,
		Inbox:  box,
		Logger: logger,
	}

	machine := statemachine.New(env, statemachine.AllStates())
	logger.Info("state machine ready", "graph", machine.DescribeGraph())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		logger.Info("listening", "addr", metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	machine.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("upparat stopped")
	return nil
}
