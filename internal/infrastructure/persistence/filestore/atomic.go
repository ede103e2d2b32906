// Package filestore implements the student and snapshot stores on top of
// JSON files. Each store owns one in-memory index guarded by a mutex and
// flushes it to disk with a temp-file rename, so a crash leaves either the
// old file or the new one, never a torn write.
//
// The bot and the worker may share one data directory. Every read checks the
// file's identity and reloads the index when another process replaced it.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// fileVersion identifies one generation of a store file. Every write
// renames a fresh temp file over path, so a new generation is a new inode.
type fileVersion struct {
	info os.FileInfo
}

// statVersion returns the current generation of path. A missing file has
// the zero version.
func statVersion(path string) (fileVersion, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileVersion{}, nil
	}
	if err != nil {
		return fileVersion{}, err
	}
	return fileVersion{info: info}, nil
}

func (v fileVersion) same(o fileVersion) bool {
	if v.info == nil || o.info == nil {
		return v.info == nil && o.info == nil
	}
	return os.SameFile(v.info, o.info) &&
		v.info.ModTime().Equal(o.info.ModTime()) &&
		v.info.Size() == o.info.Size()
}

// writeJSONAtomic writes v to path via a temp file in the same directory
// and returns the version of the file it installed.
func writeJSONAtomic(path string, v any) (ver fileVersion, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fileVersion{}, fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fileVersion{}, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err = enc.Encode(v); err != nil {
		_ = tmp.Close()
		return fileVersion{}, fmt.Errorf("encode: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fileVersion{}, fmt.Errorf("sync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fileVersion{}, fmt.Errorf("close: %w", err)
	}
	info, err := os.Stat(tmp.Name())
	if err != nil {
		return fileVersion{}, fmt.Errorf("stat: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fileVersion{}, fmt.Errorf("rename: %w", err)
	}
	return fileVersion{info: info}, nil
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
