package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
)

// LedgerRepository stores one marker file per processed item. O_EXCL file
// creation gives per-key uniqueness without a lock.
type LedgerRepository struct {
	root string
}

func ledgerKey(flowID, source, externalID string) string {
	sum := sha256.Sum256([]byte(flowID + "\x00" + source + "\x00" + externalID))

	return hex.EncodeToString(sum[:])
}

func (r *LedgerRepository) path(flowID, source, externalID string) string {
	return filepath.Join(r.root, "ledger", ledgerKey(flowID, source, externalID)+".json")
}

func (r *LedgerRepository) MarkProcessed(_ context.Context, entry *models.LedgerEntry) error {
	dir := filepath.Join(r.root, "ledger")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistence.NewRepositoryError("MarkProcessed", entry.ExternalID, err)
	}

	path := r.path(entry.FlowID, entry.Source, entry.ExternalID)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return persistence.NewRepositoryError("MarkProcessed", entry.ExternalID, persistence.ErrItemAlreadyProcessed)
		}

		return persistence.NewRepositoryError("MarkProcessed", entry.ExternalID, err)
	}

	defer func() {
		_ = file.Close()
	}()

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return persistence.NewRepositoryError("MarkProcessed", entry.ExternalID, fmt.Errorf("failed to marshal entry: %w", err))
	}

	if _, err := file.Write(data); err != nil {
		return persistence.NewRepositoryError("MarkProcessed", entry.ExternalID, err)
	}

	return nil
}

func (r *LedgerRepository) IsProcessed(_ context.Context, flowID, source, externalID string) (bool, error) {
	_, err := os.Stat(r.path(flowID, source, externalID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, persistence.NewRepositoryError("IsProcessed", externalID, err)
	}

	return true, nil
}
