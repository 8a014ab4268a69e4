package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ippeo/consultd/internal/config"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if err := rootCommand(cfg).Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func rootCommand(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "consultd",
		Short:         "Consultation report pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCommand(cfg),
		runCommand(cfg),
		resumeCommand(cfg),
		regenerateCommand(cfg),
		migrateCommand(cfg),
	)
	return root
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
