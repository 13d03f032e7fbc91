// cmd/workctl/main.go
package main

import (
	"fmt"
	"log/slog"
	"os"

	"work-pipeline/internal/cmd/workctl"
	"work-pipeline/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	root := workctl.NewRootCommand(workctl.Options{
		LoadConfig: config.Load,
		Logger:     logger,
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
