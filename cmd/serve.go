package cmd

import (
	"context"
	"fmt"

	"github.com/benasterisk/stemtube/internal/config"
	"github.com/benasterisk/stemtube/internal/server"
	"github.com/urfave/cli/v3"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the StemTube web server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "downloads-dir",
				Usage:   "Root directory for downloaded media and extracted stems",
				Sources: cli.EnvVars("ST_DOWNLOADS_DIR"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if v := cmd.String("downloads-dir"); v != "" {
				cfg.Downloads.Dir = v
			}
			if v := cmd.String("log-level"); v != "" {
				cfg.Logging.Level = v
			}

			return server.Run(ctx, cfg)
		},
	}
}
