package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/persistence/file"
	"github.com/sourcepipe/sourcepipe/pkg/persistence/postgresql"
	"github.com/sourcepipe/sourcepipe/pkg/persistence/redis"
)

// NewPersistence selects the storage engine from the database URL scheme.
// Postgres URLs get the relational backend, anything else falls back to the
// file store (the URL is treated as a directory path).
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"),
		strings.HasPrefix(databaseURL, "postgresql://"):
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to connect to postgres: %w", err))
		}

		return persist
	case strings.HasPrefix(databaseURL, "file://"):
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	default:
		return file.NewPersistence(databaseURL)
	}
}

// NewLedger returns the processed-item ledger. With a redis URL the ledger is
// served from redis for cheap membership checks; otherwise it shares the main
// storage engine.
func NewLedger(persist persistence.Persistence, redisURL string) persistence.LedgerRepository {
	if redisURL == "" {
		return persist.Ledger()
	}

	ledger, err := redis.NewLedgerRepositoryFromURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to connect to redis: %w", err))
	}

	return ledger
}
