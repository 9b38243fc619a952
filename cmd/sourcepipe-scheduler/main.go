package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/sourcepipe/sourcepipe/pkg/cmd"
	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/log"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
	"github.com/sourcepipe/sourcepipe/pkg/scheduler"
	"github.com/sourcepipe/sourcepipe/pkg/tracer"
)

func main() {
	command := &cli.Command{
		Name:                  "sourcepipe-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Poll schedules and fan due flows out into jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the processed-item ledger (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often due schedules are checked",
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing fetcher and step plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "reddit-client-id",
				Usage:   "OAuth client id for the reddit integration",
				Sources: cli.EnvVars("REDDIT_CLIENT_ID"),
			},
			&cli.StringFlag{
				Name:    "reddit-client-secret",
				Usage:   "OAuth client secret for the reddit integration",
				Sources: cli.EnvVars("REDDIT_CLIENT_SECRET"),
			},
			&cli.StringFlag{
				Name:    "reddit-redirect-url",
				Usage:   "OAuth redirect URL for the reddit integration",
				Sources: cli.EnvVars("REDDIT_REDIRECT_URL"),
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

			logger := log.WithModule("sourcepipe-scheduler")

			logger.InfoContext(ctx, "Initializing scheduler")

			persist := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persist.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "sourcepipe-scheduler", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			clock := protocol.SystemClock{}
			client := httpclient.NewHTTPClient(logger)
			ledger := cmd.NewLedger(persist, command.String("redis-url"))

			tokens := cmd.NewRedditCredentials(
				command.String("reddit-client-id"),
				command.String("reddit-client-secret"),
				command.String("reddit-redirect-url"),
				persist, client, clock, logger,
			)

			registry := cmd.NewRegistry(logger, command.String("plugins-path"), cmd.RegistryDeps{
				Tokens: tokens,
				Client: client,
				Ledger: ledger,
				Clock:  clock,
			})

			tr, err := tracer.NewTracer(ctx, "sourcepipe-scheduler")
			if err != nil {
				return err
			}

			executor := scheduler.NewEventBusExecutor(eventBus, persist.Jobs())
			dispatcher := scheduler.NewDispatcher(persist, registry, executor, eventBus, clock, tr, logger)
			runner := scheduler.NewRunner(persist, dispatcher, clock, command.Duration("poll-interval"), logger)

			return runner.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
