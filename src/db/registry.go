package db

import (
	"sync"
	"weak"

	"go.uber.org/multierr"

	"emberdb/src/config"
	"emberdb/src/helpers"
)

// The handle registry keeps a weak, non-owning entry per opened handle
// so test teardown can force-close stragglers deterministically.
// Entries are never removed individually; they go stale when their
// handle is collected and the whole set is cleared by Sweep.

var (
	registryMu sync.Mutex
	registry   []weak.Pointer[Database]
)

func registerHandle(d *Database) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, weak.Make(d))
}

// Recognized sibling suffixes of a database file. Sweep never touches
// anything outside this set.
var (
	sweepFileSuffixes = []string{".emberdb", ".emberdb.lock", ".emberdb.note"}
	sweepDirSuffixes  = []string{".emberdb.management"}
)

// Sweep force-closes every registered handle that is still open,
// clears the registry, then deletes all recognized database files
// under the default directory. It is idempotent and succeeds when
// there is nothing to do. Intended for test and reset teardown, not
// normal operation.
func Sweep() error {
	registryMu.Lock()
	entries := registry
	registry = nil
	registryMu.Unlock()

	var errs error
	for _, entry := range entries {
		handle := entry.Value()
		if handle == nil || handle.IsClosed() {
			continue
		}
		errs = multierr.Append(errs, handle.Close())
	}

	_, err := helpers.RemoveMatchingFiles(config.DefaultDirectory(), sweepFileSuffixes, sweepDirSuffixes)
	return multierr.Append(errs, err)
}
