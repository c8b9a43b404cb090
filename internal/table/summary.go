package table

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arkilian/fifotable/pkg/types"
)

// SummaryPath returns the sidecar path for a run table path.
func SummaryPath(tablePath string) string {
	dir := filepath.Dir(tablePath)
	base := filepath.Base(tablePath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(dir, name+".summary.json")
}

// WriteSummary writes the run summary sidecar as indented JSON.
func WriteSummary(path string, s *types.RunSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("summary: failed to marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("summary: failed to write %s: %w", path, err)
	}
	return nil
}

// ReadSummary reads a run summary sidecar.
func ReadSummary(path string) (*types.RunSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("summary: failed to read %s: %w", path, err)
	}
	var s types.RunSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("summary: failed to unmarshal: %w", err)
	}
	return &s, nil
}
