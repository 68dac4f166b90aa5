package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrison/maestro/internal/filelock"
)

// SaveSnapshot writes a run snapshot to dir as <run-id>.json, taking a file
// lock so concurrent runs sharing a directory never interleave writes. It
// returns the path written.
func SaveSnapshot(dir string, snap Snapshot) (string, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run snapshot: %w", err)
	}
	path := filepath.Join(dir, snap.RunID+".json")
	if err := filelock.LockAndWrite(path, data); err != nil {
		return "", fmt.Errorf("failed to write run snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a previously saved run snapshot.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode run snapshot %s: %w", path, err)
	}
	return &snap, nil
}
