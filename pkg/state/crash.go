package state

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
)

const maxStackDump = 4 << 20

// WriteCrashDump writes reason, err and all goroutine stacks to a file in
// dir and returns its path. The environment is not dumped; it carries keys.
func WriteCrashDump(dir, reason string, err error) (string, error) {
	if err := ensureDir(dir); err != nil {
		return "", err
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", now.UTC().Format("20060102T150405.000000000")))
	f, err2 := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err2 != nil {
		return "", err2
	}
	defer f.Close()

	fmt.Fprintf(f, "time:       %s\n", now.Format(time.RFC3339Nano))
	fmt.Fprintf(f, "reason:     %s\n", reason)
	if err != nil {
		fmt.Fprintf(f, "error:      %v\n", err)
	}
	fmt.Fprintf(f, "runtime:    %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(f, "goroutines: %d\n\n", runtime.NumGoroutine())
	if _, err := f.Write(Stacks()); err != nil {
		return "", err
	}
	return path, f.Sync()
}

// Stacks returns the stacks of all goroutines, growing the buffer until the
// dump fits or reaches 4MiB.
func Stacks() []byte {
	buf := make([]byte, 64<<10)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= maxStackDump {
			return buf[:n]
		}
		buf = make([]byte, len(buf)*2)
	}
}

// Crash writes a crash dump under PathsVar.Crash and exits with status 1.
func Crash(reason string, err error) {
	if PathsVar.Crash == "" {
		logger.Error("crash_without_state_dir", "reason", reason, "error", err)
		os.Exit(1)
	}
	path, werr := WriteCrashDump(PathsVar.Crash, reason, err)
	if werr != nil {
		logger.Error("crash_dump_failed", "reason", reason, "error", err, "dump_error", werr)
		os.Exit(1)
	}
	logger.Error("crash_dump_written", "path", path, "reason", reason, "error", err)
	os.Exit(1)
}
