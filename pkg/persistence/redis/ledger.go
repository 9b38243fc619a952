// Package redis provides a Redis-backed processed-item ledger. SETNX gives
// per-key uniqueness across concurrent trigger invocations without a lock.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

const keyPrefix = "sourcepipe:ledger"

// LedgerRepository implements persistence.LedgerRepository on Redis.
type LedgerRepository struct {
	client redis.UniversalClient
}

// NewLedgerRepository creates a ledger repository using the given client.
func NewLedgerRepository(client redis.UniversalClient) *LedgerRepository {
	return &LedgerRepository{client: client}
}

// NewLedgerRepositoryFromURL connects to Redis using a redis:// URL.
func NewLedgerRepositoryFromURL(url string) (*LedgerRepository, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	return &LedgerRepository{client: redis.NewClient(opts)}, nil
}

func ledgerKey(flowID, source, externalID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, flowID, source, externalID)
}

func (r *LedgerRepository) MarkProcessed(ctx context.Context, entry *models.LedgerEntry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return persistence.NewRepositoryError("MarkProcessed", entry.ExternalID, err)
	}

	// Entries never expire: the ledger is the permanent dedup record.
	set, err := r.client.SetNX(ctx, ledgerKey(entry.FlowID, entry.Source, entry.ExternalID), value, 0).Result()
	if err != nil {
		return persistence.NewRepositoryError("MarkProcessed", entry.ExternalID, err)
	}

	if !set {
		return persistence.NewRepositoryError("MarkProcessed", entry.ExternalID, persistence.ErrItemAlreadyProcessed)
	}

	return nil
}

func (r *LedgerRepository) IsProcessed(ctx context.Context, flowID, source, externalID string) (bool, error) {
	count, err := r.client.Exists(ctx, ledgerKey(flowID, source, externalID)).Result()
	if err != nil {
		return false, persistence.NewRepositoryError("IsProcessed", externalID, err)
	}

	return count > 0, nil
}

// Close releases the underlying client connection.
func (r *LedgerRepository) Close() error {
	return r.client.Close()
}
