package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/justLukaBB/glaeubiger-sync/poller"
)

func newWatchCmd() *cobra.Command {
	var intervalMinutes int

	cmd := &cobra.Command{
		Use:   "watch <client-id> [client-id...]",
		Short: "Poll the given clients' sub-threads for creditor replies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			threadStore, err := threadStoreFromViper()
			if err != nil {
				return err
			}
			records, err := recordStoreFromViper()
			if err != nil {
				return err
			}
			defer records.Close()
			syn, err := synchronizerFromViper(logger)
			if err != nil {
				return err
			}
			extractor, err := extractorFromViper(logger)
			if err != nil {
				return err
			}
			manager := managerFromViper(logger, threadStore, records)

			if intervalMinutes <= 0 {
				intervalMinutes = viper.GetInt("polling.interval_minutes")
			}
			interval := time.Duration(intervalMinutes) * time.Minute

			p := poller.New(threadStore, records, extractor, syn, poller.Options{
				Logger:              logger,
				ConfidenceThreshold: viper.GetFloat64("extraction.confidence_threshold"),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			started := 0
			for _, arg := range args {
				clientID := strings.TrimSpace(arg)
				if _, err := p.StartSession(ctx, clientID, interval); err != nil {
					logger.Error("session_start_failed", "client_id", clientID, "error", err.Error())
					continue
				}
				started++
			}
			if started == 0 {
				return fmt.Errorf("no session could be started")
			}

			sweepEvery := time.Duration(viper.GetInt("outreach.sweep_interval_hours")) * time.Hour
			timeoutDays := viper.GetInt("outreach.timeout_days")

			pollTicker := time.NewTicker(interval)
			defer pollTicker.Stop()
			sweepTicker := time.NewTicker(sweepEvery)
			defer sweepTicker.Stop()

			logger.Info("watch_started",
				"clients", started,
				"interval", interval.String(),
				"sweep_every", sweepEvery.String())

			p.Tick(ctx)
			for {
				select {
				case <-ctx.Done():
					logger.Info("watch_stopped")
					return nil
				case <-pollTicker.C:
					p.Tick(ctx)
				case <-sweepTicker.C:
					if res, err := manager.ProcessTimeoutSweep(ctx, timeoutDays); err != nil {
						logger.Error("timeout_sweep_failed", "error", err.Error())
					} else if res.TimedOut > 0 {
						logger.Info("timeout_sweep_done", "scanned", res.Scanned, "timed_out", res.TimedOut)
					}
				}
			}
		},
	}

	cmd.Flags().IntVar(&intervalMinutes, "interval", 0, "Polling interval in minutes (defaults to polling.interval_minutes)")
	return cmd
}
