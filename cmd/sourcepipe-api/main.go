package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/sourcepipe/sourcepipe/pkg/cmd"
	"github.com/sourcepipe/sourcepipe/pkg/log"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
	"github.com/sourcepipe/sourcepipe/pkg/web"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "sourcepipe-api",
		EnableShellCompletion: true,
		Usage:                 "Read-only admin API for jobs, credentials and health",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringSliceFlag{
				Name:    "integrations",
				Usage:   "Integrations reported by the credentials endpoint",
				Value:   []string{"reddit"},
				Sources: cli.EnvVars("INTEGRATIONS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("sourcepipe-api")

			logger.InfoContext(ctx, "Initializing API")

			persist := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persist.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			handlers := web.NewAPIHandlers(
				persist,
				command.StringSlice("integrations"),
				protocol.SystemClock{},
				logger,
			)

			app := web.NewApp(handlers)

			return app.Listen(fmt.Sprintf(":%d", command.Int("port")))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
