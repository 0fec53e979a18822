package capability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stackctl/pkg/logging"
)

// SearchService is the service whose capability declaration is managed.
const SearchService = "searxng"

// patchMarker tags the commented-out lines so they can be found and
// restored exactly, even by a later invocation.
const patchMarker = "# stackctl: disabled for first run"

// firstRunIndicator is created inside the search service's persistent
// settings volume by its own first-run initialization. Its presence means
// initialization already happened and no loosening is needed.
const firstRunIndicator = "uwsgi.ini"

// Patcher performs the loosen/restore edit. It is the only writer of both
// the compose file's capability lines and the state record.
type Patcher struct {
	ComposeFile string
	StateFile   string

	// DataDir is the search service's persistent settings volume on the
	// host, used for first-run detection.
	DataDir string
}

// RestoreFailedError means the restrictive capability entry could not be
// put back. The stack may still be running with a weakened declaration on
// disk, which is why this outranks every other failure.
type RestoreFailedError struct {
	ComposeFile string
	Err         error
}

func (e *RestoreFailedError) Error() string {
	return fmt.Sprintf("failed to restore capability declaration in %s: %v (re-add the cap_drop entry manually)", e.ComposeFile, e.Err)
}

func (e *RestoreFailedError) Unwrap() error { return e.Err }

// New returns a patcher for the search service's compose file. The state
// record lives next to the compose file.
func New(composeFile, stateFile, dataDir string) *Patcher {
	return &Patcher{ComposeFile: composeFile, StateFile: stateFile, DataDir: dataDir}
}

// FirstRun reports whether the search service has never been initialized.
func (p *Patcher) FirstRun() bool {
	_, err := os.Stat(filepath.Join(p.DataDir, firstRunIndicator))
	return os.IsNotExist(err)
}

// EnsureRestored completes an interrupted run: if the state record says
// "patched, not restored", the restrictive entry is put back before
// anything else happens. Call this at the start of every invocation.
func (p *Patcher) EnsureRestored() error {
	rec, err := loadRecord(p.StateFile)
	if err != nil {
		return err
	}
	if rec == nil || rec.Restored {
		return nil
	}

	logging.Warn("CapabilityPatcher", "Found incomplete capability override from %s, restoring now", rec.PatchedAt.Format(time.RFC3339))
	return p.Restore()
}

// Prepare loosens the capability declaration when (and only when) this is
// the search service's first run. Calling it twice does not loosen twice:
// an already-patched file is detected and left as is. Returns whether the
// file is patched after the call.
func (p *Patcher) Prepare() (bool, error) {
	content, err := os.ReadFile(p.ComposeFile)
	if err != nil {
		return false, fmt.Errorf("failed to read compose file %s: %w", p.ComposeFile, err)
	}
	text := string(content)

	if strings.Contains(text, patchMarker) {
		// Patched by an earlier invocation and not yet restored.
		logging.Debug("CapabilityPatcher", "Compose file already patched, not loosening again")
		return true, nil
	}

	if !p.FirstRun() {
		return false, nil
	}

	patched, changed := commentOutCapDrop(text)
	if !changed {
		// Nothing restrictive to loosen; fine.
		return false, nil
	}

	if err := os.WriteFile(p.ComposeFile, []byte(patched), 0o644); err != nil {
		return false, fmt.Errorf("failed to patch compose file %s: %w", p.ComposeFile, err)
	}

	rec := &Record{
		Service:     SearchService,
		ComposeFile: p.ComposeFile,
		PatchedAt:   time.Now().UTC(),
	}
	if err := saveRecord(p.StateFile, rec); err != nil {
		// Without the record a crash would leave the loosening untracked;
		// undo the edit rather than continue.
		_ = os.WriteFile(p.ComposeFile, content, 0o644)
		return false, err
	}

	logging.Info("CapabilityPatcher", "First run detected for %s, capability drop temporarily disabled", SearchService)
	return true, nil
}

// Restore puts the restrictive entry back and marks the record restored.
// It is idempotent: restoring an unpatched file succeeds without touching
// it.
func (p *Patcher) Restore() error {
	content, err := os.ReadFile(p.ComposeFile)
	if err != nil {
		return &RestoreFailedError{ComposeFile: p.ComposeFile, Err: err}
	}
	text := string(content)

	if strings.Contains(text, patchMarker) {
		restored := uncommentCapDrop(text)
		if err := os.WriteFile(p.ComposeFile, []byte(restored), 0o644); err != nil {
			return &RestoreFailedError{ComposeFile: p.ComposeFile, Err: err}
		}
	}

	rec, err := loadRecord(p.StateFile)
	if err != nil {
		return err
	}
	if rec != nil && !rec.Restored {
		now := time.Now().UTC()
		rec.Restored = true
		rec.RestoredAt = &now
		if err := saveRecord(p.StateFile, rec); err != nil {
			return err
		}
		logging.Info("CapabilityPatcher", "Capability drop for %s restored", SearchService)
	}

	return nil
}

// commentOutCapDrop comments out a block-style
//
//	cap_drop:
//	  - ALL
//
// pair, tagging both lines with the patch marker. Only the first occurrence
// is touched; the search service is the only service in the stack that
// declares a full drop.
func commentOutCapDrop(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines)-1; i++ {
		if strings.TrimSpace(lines[i]) == "cap_drop:" && strings.TrimSpace(lines[i+1]) == "- ALL" {
			lines[i] = commentLine(lines[i])
			lines[i+1] = commentLine(lines[i+1])
			return strings.Join(lines, "\n"), true
		}
	}
	return text, false
}

// uncommentCapDrop reverses commentOutCapDrop on every marked line.
func uncommentCapDrop(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.Contains(line, patchMarker) {
			lines[i] = uncommentLine(line)
		}
	}
	return strings.Join(lines, "\n")
}

func commentLine(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(trimmed)]
	return indent + "# " + trimmed + "  " + patchMarker
}

func uncommentLine(line string) string {
	idx := strings.Index(line, patchMarker)
	body := strings.TrimRight(line[:idx], " \t")
	trimmed := strings.TrimLeft(body, " \t")
	indent := body[:len(body)-len(trimmed)]
	return indent + strings.TrimPrefix(trimmed, "# ")
}
