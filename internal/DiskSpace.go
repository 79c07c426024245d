package internal

import (
	"os"
	"path/filepath"
	"syscall"
)

// freeSpaceFunc queries available bytes on the volume holding path.
// Replaced in tests.
var freeSpaceFunc = statfsFreeSpace

func statfsFreeSpace(path string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// nearestExistingDir walks up from path to the closest directory that
// exists, so space can be queried before the install target is created.
func nearestExistingDir(path string) string {
	for {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

// EnsureSpace requires free space exceeding requiredBytes plus a 10%
// safety margin before any write begins. When the platform query itself
// fails the check is advisory: it logs and proceeds. An actual
// insufficient-space determination is fatal.
func EnsureSpace(targetPath string, requiredBytes int64) error {
	if requiredBytes <= 0 {
		return nil
	}

	checkPath := nearestExistingDir(targetPath)
	available, err := freeSpaceFunc(checkPath)
	if err != nil {
		PushLogWarning(nil, "could not determine free disk space, proceeding",
			"path", checkPath, "error", err)
		return nil
	}

	requiredWithMargin := uint64(requiredBytes) + uint64(requiredBytes)/10
	if available < requiredWithMargin {
		return NewError(KindDisk,
			"insufficient disk space at %s: required %d bytes (with 10%% margin), available %d",
			checkPath, requiredWithMargin, available)
	}

	PushLogInfo(nil, "disk space check passed",
		"path", checkPath, "required", requiredWithMargin, "available", available)
	return nil
}
