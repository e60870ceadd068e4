package main

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sudo-init-do/handyhub/internal/alerts"
	"github.com/sudo-init-do/handyhub/internal/worker"
)

func workerCmd() *cobra.Command {
	var concurrency int
	var schedule bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background jobs (notification emails, expiry sweeps)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.RedisAddr == "" {
				return errors.New("REDIS_ADDR is required for the worker")
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			processor := &alerts.Processor{Users: a.store, Mailer: alerts.NewMailer(mailConfig(cfg)), Log: log.Logger}
			wcfg := worker.Config{RedisAddr: cfg.RedisAddr, Concurrency: concurrency}
			if schedule {
				wcfg.SweepInterval = cfg.SweepInterval
			}
			w := worker.New(wcfg, worker.NewMux(processor, a.market, log.Logger), log.Logger)
			if err := w.Start(); err != nil {
				return err
			}
			log.Info().Str("redis", cfg.RedisAddr).Msg("worker started")
			<-ctx.Done()
			w.Shutdown()
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 5, "concurrent task handlers")
	cmd.Flags().BoolVar(&schedule, "schedule", true, "enqueue periodic expiry sweeps")
	return cmd
}
