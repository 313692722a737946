//go:build darwin

package mirror

import (
	"syscall"
	"time"
)

// birthTime returns the creation time of path from Birthtimespec.
func birthTime(path string) (time.Time, error) {
	var stat syscall.Stat_t
	if err := syscall.Stat(path, &stat); err != nil {
		return time.Time{}, err
	}

	return time.Unix(stat.Birthtimespec.Unix()), nil
}
