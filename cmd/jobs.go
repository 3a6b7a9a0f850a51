package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-ajo/config"
)

var (
	workerMode bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-verify stale pending payments against the gateway",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			func(app *application, ctx context.Context) error {
				return app.payments.RunReconcileBatch(ctx)
			},
		)
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Run expiration-related commands",
}

var expirePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Fail pending payments the gateway never completed",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"expire_pending",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ExpirePendingInterval },
			func(app *application, ctx context.Context) error {
				return app.payments.RunExpirePendingBatch(ctx)
			},
		)
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Run retry-related commands",
}

var retryUnprocessedCmd = &cobra.Command{
	Use:   "unprocessed",
	Short: "Apply business effects for verified payments left unprocessed",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"retry_unprocessed",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.RetryUnprocessedInterval },
			func(app *application, ctx context.Context) error {
				return app.payments.RunRetryUnprocessedBatch(ctx)
			},
		)
	},
}

var contributionsCmd = &cobra.Command{
	Use:   "contributions",
	Short: "Run contribution-related commands",
}

var contributionsOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "Flag unpaid contributions past their due date",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"contributions_overdue",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.OverdueInterval },
			func(app *application, ctx context.Context) error {
				return app.groups.RunOverdueBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(expireCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(contributionsCmd)
	expireCmd.AddCommand(expirePendingCmd)
	retryCmd.AddCommand(retryUnprocessedCmd)
	contributionsCmd.AddCommand(contributionsOverdueCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(app *application, ctx context.Context) error,
) {
	app, cleanup := mustCreateApp()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(app.cfg), app, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(app, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	app *application,
	fn func(app *application, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(app, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(app, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
