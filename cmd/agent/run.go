package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/fittrack/internal/agentconfig"
	"example.com/fittrack/internal/offline/connectivity"
	"example.com/fittrack/internal/offline/syncer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync engine until interrupted",
	Long: `Starts the sync engine. A pass runs whenever connectivity returns, every
sync_interval while online with records queued, and expired records are swept
on start and every sweep_interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireServer(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		registry := prometheus.NewRegistry()
		a, err := openAgent(ctx, syncer.WithRegisterer(registry))
		if err != nil {
			return err
		}
		defer a.Close()

		a.engine.OnComplete(func(res syncer.Result) {
			if res.Skipped == syncer.SkipQueueFailure {
				log.WithField("error", res.Error).Error("sync pass could not read the offline queue")
				return
			}
			entry := log.WithFields(log.Fields{
				"synced":   res.SyncedCount,
				"failed":   res.FailedCount,
				"duration": res.Duration,
			})
			if res.HasPermanentErrors() {
				for _, e := range res.Errors {
					if e.Kind != syncer.ErrorTransient {
						entry.WithFields(log.Fields{"local_id": e.LocalID, "error_kind": e.Kind}).Warn(e.Reason)
					}
				}
			}
			entry.Info("sync finished")
		})

		var source *connectivity.FileSource
		if cfg.ConnectivityFile != "" {
			if source, err = connectivity.NewFileSource(cfg.ConnectivityFile, a.monitor); err != nil {
				return err
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return ignoreCanceled(a.engine.Run(gctx)) })
		if source != nil {
			g.Go(func() error { return ignoreCanceled(source.Run(gctx)) })
		}

		if cfg.MetricsAddress != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			g.Go(func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}

		log.WithFields(log.Fields{
			"server":       cfg.ServerURL,
			"queue":        a.store.Path(),
			"connectivity": a.monitor.Current(),
		}).Info("fittrack agent started")

		err = g.Wait()
		log.Info("fittrack agent stopped")
		return err
	},
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	runCmd.Flags().String("metrics-address", "", "Serve Prometheus metrics on this address")
	if err := settings.BindPFlag(agentconfig.KeyMetricsAddress, runCmd.Flags().Lookup("metrics-address")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(runCmd)
}
