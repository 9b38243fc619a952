package main

import (
	"context"
	"errors"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/sourcepipe/sourcepipe/pkg/cmd"
	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/log"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
	"github.com/sourcepipe/sourcepipe/pkg/worker"
)

func main() {
	command := &cli.Command{
		Name:                  "sourcepipe-worker",
		EnableShellCompletion: true,
		Usage:                 "Consume job events and run pipeline steps",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing fetcher and step plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
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

			logger := log.WithModule("sourcepipe-worker")

			logger.InfoContext(ctx, "Initializing worker")

			persist := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persist.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "sourcepipe-worker", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			clock := protocol.SystemClock{}
			client := httpclient.NewHTTPClient(logger)

			// Workers never fetch; the registry only needs step factories, but
			// native fetchers are registered anyway so job snapshots always
			// validate against the same schema set as the scheduler.
			registry := cmd.NewRegistry(logger, command.String("plugins-path"), cmd.RegistryDeps{
				Client: client,
				Ledger: persist.Ledger(),
				Clock:  clock,
			})

			w := worker.NewWorker(eventBus, persist, registry, clock, logger)

			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
