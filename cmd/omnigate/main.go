package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/omnimsg/omnigate/internal/config"
	"github.com/omnimsg/omnigate/internal/db"
	"github.com/omnimsg/omnigate/internal/logger"
)

func main() {
	// A missing .env is fine; config.toml and real env vars still apply.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "omnigate",
		Short: "Multi-channel message gateway backend",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			return db.Migrate(cfg.Postgres)
		},
	}

	root.AddCommand(serve, migrate)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
