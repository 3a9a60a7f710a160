package main

import (
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/knowable-run/chain-metrics-gateway/fixtures"
	"github.com/knowable-run/chain-metrics-gateway/internal/config"
	"github.com/knowable-run/chain-metrics-gateway/internal/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	var configPath, verbosity string

	app := &cli.App{
		Name:  "gateway",
		Usage: "Cached chain metrics over HTTP",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a starter configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "config",
						Value:       "gateway.yaml",
						EnvVars:     []string{"GATEWAY_CONFIG"},
						Destination: &configPath,
					},
				},
				Action: func(c *cli.Context) error {
					if err := writeConfigTemplate(configPath); err != nil {
						return err
					}
					fmt.Printf("Configuration written to %s\n", configPath)
					return nil
				},
			},
			{
				Name:  "start",
				Usage: "Warm the cache and serve the metrics endpoints",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "config",
						Usage:       "Path to the configuration file (YAML or TOML)",
						EnvVars:     []string{"GATEWAY_CONFIG"},
						Required:    true,
						Destination: &configPath,
					},
					&cli.StringFlag{
						Name:        "verbosity",
						Usage:       "Override the configured log level",
						Destination: &verbosity,
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.LoadConfig(configPath)
					if err != nil {
						return err
					}
					if verbosity != "" {
						cfg.Logger.Verbosity = verbosity
					}
					log, err := logger.New(cfg.Logger.Verbosity)
					if err != nil {
						return err
					}
					defer log.Sync() //nolint:errcheck

					printBanner(cfg)
					return start(cfg, log)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// writeConfigTemplate refuses to overwrite an existing file.
func writeConfigTemplate(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(fixtures.ConfigTemplate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printBanner(cfg *config.Config) {
	figure.NewFigure("Gateway", "", true).Print()
	fmt.Println("")
	fmt.Printf("RPC:       %s\n", cfg.RPC)
	fmt.Printf("Listening: %s\n", cfg.ListenAddr())
	fmt.Printf("Cache:     %s\n", cfg.Cache)
	fmt.Println("-----------------------------------------------")
}
