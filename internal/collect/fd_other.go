//go:build !linux && !darwin && !freebsd

package collect

// CountFDs is unavailable on this platform and reports 0, 0.
func CountFDs() (open, limit int) {
	return 0, 0
}
