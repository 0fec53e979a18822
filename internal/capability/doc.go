// Package capability manages the search service's temporary security
// loosening.
//
// The search service declares a full capability drop, but its first-run
// initialization needs capabilities that policy forbids afterwards. The
// patcher removes the restrictive declaration from the compose file for the
// first run only and restores it unconditionally afterwards, whether or not
// the service came up.
//
// Every mutation is tracked in an on-disk state record owned exclusively by
// this package. The record is what makes the edit safe across interruptions:
// a run that finds "patched, not restored" on disk completes the restore
// before doing anything else, and an already-patched file is never loosened
// a second time. The restrictive declaration being back in place is part of
// the launcher's success condition; a failed restore is reported as the most
// severe failure class there is.
package capability
