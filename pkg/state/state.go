// Package state owns the on-disk layout under the database directory.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const defaultDBPath = "./.chatdb"

// Ensure creates every managed directory with owner-only permissions and
// checks that each one is a real, writable directory.
func (p Paths) Ensure() error {
	for _, dir := range p.managed() {
		if err := ensureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

func ensureDir(dir string) error {
	if fi, err := os.Lstat(dir); err == nil {
		switch {
		case fi.Mode()&os.ModeSymlink != 0:
			return fmt.Errorf("state dir %s is a symlink", dir)
		case !fi.IsDir():
			return fmt.Errorf("state dir %s exists and is not a directory", dir)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("state dir %s not writable: %w", dir, err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// EnsureStateDirs is PathsFor(dbPath).Ensure().
func EnsureStateDirs(dbPath string) error { return PathsFor(dbPath).Ensure() }

var (
	PathsVar Paths
	initOnce sync.Once
	initErr  error
)

// Init resolves the layout for dbPath into PathsVar and creates it. Only the
// first call has any effect.
func Init(dbPath string) error {
	initOnce.Do(func() {
		root := strings.TrimSpace(dbPath)
		if root == "" {
			root = defaultDBPath
		}
		PathsVar = PathsFor(filepath.Clean(root))
		initErr = PathsVar.Ensure()
	})
	return initErr
}
