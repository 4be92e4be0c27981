package main

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"example.com/fittrack/internal/agentconfig"
	"example.com/fittrack/internal/logging"
	"example.com/fittrack/internal/offline/capture"
	"example.com/fittrack/internal/offline/connectivity"
	"example.com/fittrack/internal/offline/queue"
	"example.com/fittrack/internal/offline/reconcile"
	"example.com/fittrack/internal/offline/syncer"
)

var (
	configFile string
	settings   = agentconfig.New()
	cfg        agentconfig.Config
	logCloser  io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "fittrack-agent",
	Short: "Offline workout capture and sync agent",
	Long: `Records workouts on the device, keeps them in a durable local queue while
offline, and reconciles them with the fittrack API once connectivity returns.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := agentconfig.Load(settings, configFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logCloser = logging.Setup(logging.SetupParams{
			LogFileName:   cfg.LogFile,
			LogToStdout:   cfg.LogFile != "",
			LogLevel:      cfg.LogLevel,
			LogFormatJSON: cfg.LogJSON,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to the agent config file (default fittrack-agent.yaml)")
	flags.String("server-url", "", "Base URL of the fittrack API")
	flags.String("token", "", "Bearer token used for the sync endpoint")
	flags.String("queue-path", "", "SQLite file holding the offline queue")
	flags.String("connectivity-file", "", "Status file reporting online/offline")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error)")

	for key, name := range map[string]string{
		agentconfig.KeyServerURL:        "server-url",
		agentconfig.KeyToken:            "token",
		agentconfig.KeyQueuePath:        "queue-path",
		agentconfig.KeyConnectivityFile: "connectivity-file",
		agentconfig.KeyLogLevel:         "log-level",
	} {
		if err := settings.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// agent wires the offline components for one command invocation.
type agent struct {
	store    *queue.SQLiteStore
	monitor  *connectivity.Monitor
	client   *reconcile.Client
	engine   *syncer.Engine
	recorder *capture.Recorder
}

func openAgent(ctx context.Context, opts ...syncer.Option) (*agent, error) {
	store, err := queue.OpenSQLite(ctx, cfg.QueuePath)
	if err != nil {
		return nil, fmt.Errorf("open offline queue: %w", err)
	}

	initial := connectivity.Online
	if cfg.ConnectivityFile != "" {
		initial = connectivity.ReadState(cfg.ConnectivityFile)
	}
	monitor := connectivity.NewMonitor(initial)
	client := reconcile.NewClient(cfg.ServerURL, cfg.Token, cfg.RequestTimeout)

	opts = append([]syncer.Option{syncer.WithLogger(log.WithField("component", "syncer"))}, opts...)
	engine := syncer.New(store, client, monitor, syncer.Config{
		SyncInterval:  cfg.SyncInterval,
		MaxBatchSize:  cfg.MaxBatchSize,
		Retention:     cfg.Retention,
		SweepInterval: cfg.SweepInterval,
	}, opts...)

	return &agent{
		store:    store,
		monitor:  monitor,
		client:   client,
		engine:   engine,
		recorder: capture.NewRecorder(store, client, monitor),
	}, nil
}

func (a *agent) Close() error {
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close offline queue: %w", err)
	}
	return nil
}
