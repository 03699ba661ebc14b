package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/0xmhha/tron-indexer-go/internal/config"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to configuration file (YAML)",
		EnvVars: []string{"INDEXER_CONFIG"},
	}
	rpcFlag = &cli.StringFlag{
		Name:  "rpc",
		Usage: "TRON full node HTTP API endpoint",
	}
	networkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "network name: mainnet, shasta or nile",
	}
	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "database path",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "log level (debug, info, warn, error)",
	}
	logFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "log format (json, console)",
	}
)

func main() {
	app := &cli.App{
		Name:    "tron-indexer",
		Usage:   "index TRON blocks, classify transactions and notify observers",
		Version: version,
		Flags:   []cli.Flag{configFlag, rpcFlag, networkFlag, dbFlag, logLevelFlag, logFormatFlag},
		Commands: []*cli.Command{
			runCommand,
			statusCommand,
			backfillCommand,
			versionCommand,
		},
		// Running without a subcommand starts the indexer
		Action: runIndexer,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[tron-indexer] %v\n", err)
		os.Exit(1)
	}
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "show version information",
	Action: func(c *cli.Context) error {
		fmt.Printf("tron-indexer version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		return nil
	},
}

// loadConfig loads .env, the configuration file and environment, then
// applies global flags on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := config.NewConfig()
	if path := c.String(configFlag.Name); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Flags win over file and environment
	applyFlags(c, cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration
func applyFlags(c *cli.Context, cfg *config.Config) {
	if v := c.String(rpcFlag.Name); v != "" {
		cfg.RPC.Endpoint = v
	}
	if v := c.String(networkFlag.Name); v != "" {
		cfg.RPC.Network = v
	}
	if v := c.String(dbFlag.Name); v != "" {
		cfg.Database.Path = v
	}
	if v := c.String(logLevelFlag.Name); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String(logFormatFlag.Name); v != "" {
		cfg.Log.Format = v
	}
}
