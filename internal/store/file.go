package store

import (
	"os"
	"path/filepath"
)

// writeFileAtomic replaces path with contents so that readers see either the old
// or the new contents, never a mix.
func writeFileAtomic(path string, contents []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	_, err = tmp.Write(contents)
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Sync()
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	err = os.Chmod(tmpName, 0600)
	if err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
