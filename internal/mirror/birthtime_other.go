//go:build !linux && !darwin

package mirror

import (
	"os"
	"time"
)

// birthTime falls back to the modification time where no creation time is
// exposed.
func birthTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}

	return info.ModTime(), nil
}
