//go:build linux || darwin || freebsd

package collect

import (
	"os"
	"syscall"
)

// CountFDs returns the number of open file descriptors and the soft limit.
func CountFDs() (open, limit int) {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		entries, err = os.ReadDir("/dev/fd")
	}
	if err != nil {
		return 0, 0
	}
	open = len(entries)

	var rlim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlim); err == nil {
		// #nosec G115 -- rlimit values fit in int on supported platforms
		limit = int(rlim.Cur)
	}
	return open, limit
}
