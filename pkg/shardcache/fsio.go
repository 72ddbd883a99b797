package shardcache

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// atomicWriteFile writes data to path via a temp file in the same
// directory, fsyncing the file and then the directory so the rename is
// durable. On systems where rename over an existing file fails, the
// destination is removed and the rename retried.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	// Permissions are cosmetic for a cache file.
	_ = tmp.Chmod(filePerm)
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		if rmErr := os.Remove(path); rmErr == nil {
			err = os.Rename(tmpName, path)
		}
		if err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("rename temp file: %w", err)
		}
	}
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	// Some filesystems reject fsync on directories; the rename still
	// happened, so ignore the failure.
	_ = d.Sync()
	return nil
}
