package config

import "sync"

var (
	defaultDirMu sync.RWMutex
	defaultDir   = "."
)

// DefaultDirectory returns the process-wide directory that relative
// and absent paths resolve against.
func DefaultDirectory() string {
	defaultDirMu.RLock()
	defer defaultDirMu.RUnlock()
	return defaultDir
}

// SetDefaultDirectory changes the process-wide default directory.
// Test teardown utilities delete recognized database files under it.
func SetDefaultDirectory(dir string) {
	defaultDirMu.Lock()
	defer defaultDirMu.Unlock()
	if dir == "" {
		dir = "."
	}
	defaultDir = dir
}
