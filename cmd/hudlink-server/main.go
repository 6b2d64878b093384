// Command hudlink-server exposes the run API: submit state/year runs, poll
// their status, browse committed outputs and scrape /metrics.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"hudlink/internal/app"
	"hudlink/internal/config"
)

func main() {
	configFile := flag.String("config", "", "YAML configuration file (default hudlink.yaml when present)")
	envFile := flag.String("env", "", ".env file (default .env when present)")
	port := flag.Int("port", 0, "listen port, overrides server.port")
	flag.Parse()

	opts := config.LoadOptions{ConfigFile: *configFile, EnvFile: *envFile}
	if *port != 0 {
		opts.Overrides = func(c *config.Config) { c.Server.Port = *port }
	}

	application, err := app.NewApplication(context.Background(), opts)
	if err != nil {
		slog.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
