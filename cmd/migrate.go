package cmd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-ajo/app/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Run:   runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) {
	cfg := mustLoadConfig()
	db := mustOpenDB(cfg)
	defer func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	applied, err := repository.Migrate(ctx, db)
	if err != nil {
		logrus.WithError(err).Fatal("Migration failed")
	}
	if len(applied) == 0 {
		logrus.Info("Schema is up to date")
		return
	}
	logrus.WithField("versions", applied).Info("Migrations applied")
}
