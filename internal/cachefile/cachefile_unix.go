//go:build unix

package cachefile

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Normalize makes path owned by root with Mode permissions. It only acts when
// the process runs as root and the file exists; otherwise it is a no-op.
func Normalize(path string) error {
	if path == "" || unix.Geteuid() != 0 {
		return nil
	}

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil
		}
		return fmt.Errorf("cachefile: stat %s: %w", path, err)
	}

	if st.Uid != 0 || st.Gid != 0 {
		if err := unix.Chown(path, 0, 0); err != nil {
			return fmt.Errorf("cachefile: chown %s: %w", path, err)
		}
	}
	if uint32(st.Mode)&0o7777 != uint32(Mode) {
		if err := unix.Chmod(path, uint32(Mode)); err != nil {
			return fmt.Errorf("cachefile: chmod %s: %w", path, err)
		}
	}
	return nil
}
