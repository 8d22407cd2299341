//go:build darwin

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// detectFilesystemType returns the f_fstypename reported by statfs, e.g.
// "apfs", "nfs" or "smbfs".
func detectFilesystemType(path string) (string, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return "", fmt.Errorf("statfs %s: %w", path, err)
	}
	return unix.ByteSliceToString(st.Fstypename[:]), nil
}
