//go:build linux

package mirror

import (
	"time"

	"golang.org/x/sys/unix"
)

// birthTime returns the creation time of path via statx. Filesystems that
// do not record it (STATX_BTIME missing from the mask) fall back to mtime.
func birthTime(path string) (time.Time, error) {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME|unix.STATX_MTIME, &stx); err != nil {
		return time.Time{}, err
	}

	if stx.Mask&unix.STATX_BTIME == 0 {
		return time.Unix(stx.Mtime.Sec, int64(stx.Mtime.Nsec)), nil
	}

	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), nil
}
