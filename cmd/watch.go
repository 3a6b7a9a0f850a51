package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-ajo/app/client"
)

var watchOpts struct {
	reference     string
	token         string
	baseURL       string
	pollInterval  time.Duration
	maxAttempts   int
	streamTimeout time.Duration
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Wait until a payment activates its membership",
	Long:  "Follow a payment reference over the live update stream, falling back to polling, until the membership is active or the payment fails.",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchOpts.reference, "reference", "", "Payment reference to follow")
	watchCmd.Flags().StringVar(&watchOpts.token, "token", os.Getenv("AJO_ACCESS_TOKEN"), "Bearer access token")
	watchCmd.Flags().StringVar(&watchOpts.baseURL, "base-url", "http://localhost:8080", "Ajo API base URL")
	watchCmd.Flags().DurationVar(&watchOpts.pollInterval, "poll-interval", 3*time.Second, "Delay between status polls")
	watchCmd.Flags().IntVar(&watchOpts.maxAttempts, "max-attempts", 20, "Status polls before giving up")
	watchCmd.Flags().DurationVar(&watchOpts.streamTimeout, "stream-timeout", time.Minute, "How long to follow live updates before polling")
	_ = watchCmd.MarkFlagRequired("reference")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if strings.TrimSpace(watchOpts.token) == "" {
		return errors.New("an access token is required (--token or AJO_ACCESS_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher := client.NewWatcher(client.WatcherConfig{
		BaseURL:       watchOpts.baseURL,
		AccessToken:   watchOpts.token,
		PollInterval:  watchOpts.pollInterval,
		MaxAttempts:   watchOpts.maxAttempts,
		StreamTimeout: watchOpts.streamTimeout,
	})

	activation, err := watcher.WaitForActivation(ctx, watchOpts.reference)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	entry := logrus.WithFields(logrus.Fields{
		"reference": activation.Reference,
		"status":    activation.Status,
		"activated": activation.Activated,
	})
	if activation.Position != nil {
		entry = entry.WithField("position", *activation.Position)
	}
	if activation.Error != "" {
		entry.WithField("error", activation.Error).Warn("Payment needs attention")
		return errors.New(activation.Error)
	}
	if !activation.Activated {
		entry.Warn("Payment did not activate a membership")
		return fmt.Errorf("payment ended with status %s", activation.Status)
	}
	entry.Info("Membership active")
	return nil
}
