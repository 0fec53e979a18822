package capability

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Record is the persisted CapabilityOverride state. It exists from the
// moment the compose file is loosened until the restrictive entry has been
// put back, and survives process restarts so an interrupted run can finish
// the restore.
type Record struct {
	Service     string     `yaml:"service"`
	ComposeFile string     `yaml:"composeFile"`
	PatchedAt   time.Time  `yaml:"patchedAt"`
	Restored    bool       `yaml:"restored"`
	RestoredAt  *time.Time `yaml:"restoredAt,omitempty"`
}

func loadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read capability record %s: %w", path, err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse capability record %s: %w", path, err)
	}
	return &rec, nil
}

func saveRecord(path string, rec *Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode capability record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write capability record %s: %w", path, err)
	}
	return nil
}
