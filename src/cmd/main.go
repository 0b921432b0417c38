package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cfg "imghost/src/configuration"
	"imghost/src/logging"
)

var rootCmd = &cobra.Command{
	Use:           "imghost",
	Short:         "Upload, list and delete images kept in an S3 bucket",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, reconcileCmd)
}

// setup reads the environment and builds the logger every command uses.
func setup() (*cfg.Properties, *logrus.Logger, error) {
	config, err := cfg.ReadProperties()
	if err != nil {
		return nil, nil, err
	}
	log := logging.NewLogger(config.LogLevel, config.LogFormat)
	log.WithField("config", config.String()).Debug("configuration loaded")
	return config, log, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("command failed")
		stop()
		os.Exit(1)
	}
}
