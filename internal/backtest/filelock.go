package backtest

import (
	"os"
	"syscall"
)

// lockExclusive and unlockFile serialize concurrent appenders to a
// shared file (index.csv, per-strategy trade files) across goroutines
// and processes. No dependency in the reference stack wraps flock(2);
// every caller here already holds its own in-process mutex first
// (EventLogger.indexMu, FileTradeStore.mu), so this only guards
// against a second OS process appending at the same time.
func lockExclusive(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX)
}

func unlockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
