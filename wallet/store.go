package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"bundler/types"
)

// loadState reads the persisted pool file. A missing file is not an
// error; it simply means a fresh pool.
func loadState(path string) (*types.PoolState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pool state %s: %w", path, err)
	}

	var state types.PoolState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse pool state %s: %w", path, err)
	}
	return &state, nil
}

// saveState rewrites the pool file. Key material lives here, so the file
// is owner-only.
func saveState(path string, state *types.PoolState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pool state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write pool state %s: %w", path, err)
	}
	return nil
}
