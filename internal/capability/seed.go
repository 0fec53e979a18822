package capability

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stackctl/pkg/logging"
)

// secretPlaceholder is the placeholder shipped in the search service's base
// settings template.
const secretPlaceholder = "ultrasecretkey"

// EnsureSettings creates the search service's settings file from its base
// template on first use, replacing the placeholder secret with a freshly
// generated key. An existing settings file is left alone, so repeated
// invocations keep the same secret.
func EnsureSettings(dataDir string) error {
	settingsPath := filepath.Join(dataDir, "settings.yml")
	basePath := filepath.Join(dataDir, "settings-base.yml")

	if _, err := os.Stat(settingsPath); err == nil {
		logging.Debug("CapabilityPatcher", "Search service settings already present at %s", settingsPath)
		return nil
	}

	base, err := os.ReadFile(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Warn("CapabilityPatcher", "Search service base settings not found at %s, skipping secret seeding", basePath)
			return nil
		}
		return fmt.Errorf("failed to read search service base settings %s: %w", basePath, err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate search service secret: %w", err)
	}

	seeded := strings.ReplaceAll(string(base), secretPlaceholder, hex.EncodeToString(key))
	if err := os.WriteFile(settingsPath, []byte(seeded), 0o644); err != nil {
		return fmt.Errorf("failed to write search service settings %s: %w", settingsPath, err)
	}

	logging.Info("CapabilityPatcher", "Seeded search service settings at %s", settingsPath)
	return nil
}
