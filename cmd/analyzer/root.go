package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func initLogger() {
	logLevel := os.Getenv("ANALYZER_LOG_LEVEL")
	var level slog.Leveler
	if logLevel == "DEBUG" {
		level = slog.LevelDebug
	} else {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	slog.SetDefault(logger)
}

func PreRun(cmd *cobra.Command, args []string) {
	initLogger()
}

func reportErrorAndExit(branch string, message string, exitCode int) {
	if exitCode == 0 {
		slog.Info(message, "branch", branch)
	} else {
		slog.Error(message, "branch", branch)
	}
	os.Exit(exitCode)
}

var rootCmd = &cobra.Command{
	Use:              "analyzer",
	Short:            "Uploads repo images to S3, detects labels with Rekognition and records results in DynamoDB",
	PersistentPreRun: PreRun,
}
