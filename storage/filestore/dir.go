// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package filestore

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/zeebo/errs"

	"metatree.io/metatree/pkg/metatree"
)

const (
	blobPermission = 0644
	dirPermission  = 0755
)

// Dir represents a single folder for storing blobs. References are split
// into two hex prefix segments to bound per-directory entry counts:
// objects/<2 chars>/<2 chars>/<60 chars>.
type Dir struct {
	path string
}

// NewDir opens a blob folder, creating the layout if necessary.
func NewDir(path string) (*Dir, error) {
	dir := &Dir{path: path}
	return dir, errs.Combine(
		os.MkdirAll(dir.blobdir(), dirPermission),
		os.MkdirAll(dir.tempdir(), dirPermission),
	)
}

// Path returns the directory path.
func (dir *Dir) Path() string { return dir.path }

func (dir *Dir) blobdir() string { return filepath.Join(dir.path, "objects") }
func (dir *Dir) tempdir() string { return filepath.Join(dir.path, "tmp") }

// refToPath converts an object reference to a file path.
func (dir *Dir) refToPath(ref metatree.ObjectRef) string {
	hex := ref.String()
	return filepath.Join(dir.blobdir(), hex[0:2], hex[2:4], hex[4:])
}

// CreateTemporaryFile creates a temporary file in the temp directory.
func (dir *Dir) CreateTemporaryFile() (*os.File, error) {
	return ioutil.TempFile(dir.tempdir(), "blob-*.partial")
}

// DeleteTemporary closes and deletes a temporary file.
func (dir *Dir) DeleteTemporary(file *os.File) error {
	closeErr := file.Close()
	return errs.Combine(closeErr, os.Remove(file.Name()))
}

// Commit publishes a temporary file under the given reference. The rename
// is the atomic publish point: concurrent readers either see the complete
// blob or no blob at all.
func (dir *Dir) Commit(file *os.File, ref metatree.ObjectRef) error {
	syncErr := file.Sync()
	chmodErr := file.Chmod(blobPermission)
	closeErr := file.Close()
	if syncErr != nil || chmodErr != nil || closeErr != nil {
		removeErr := os.Remove(file.Name())
		return errs.Combine(syncErr, chmodErr, closeErr, removeErr)
	}

	path := dir.refToPath(ref)
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil && !os.IsExist(err) {
		return errs.Combine(err, os.Remove(file.Name()))
	}

	if err := os.Rename(file.Name(), path); err != nil {
		return errs.Combine(err, os.Remove(file.Name()))
	}
	return nil
}

// Open opens the blob with the specified reference.
func (dir *Dir) Open(ref metatree.ObjectRef) (*os.File, error) {
	return os.OpenFile(dir.refToPath(ref), os.O_RDONLY, blobPermission)
}

// Stat returns file info for the blob with the specified reference.
func (dir *Dir) Stat(ref metatree.ObjectRef) (os.FileInfo, error) {
	return os.Stat(dir.refToPath(ref))
}

// Walk calls fn for every committed blob until fn returns false.
func (dir *Dir) Walk(fn func(ref metatree.ObjectRef) bool) error {
	stop := errs.New("stop walk")
	err := filepath.Walk(dir.blobdir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir.blobdir(), path)
		if err != nil {
			return err
		}
		hex := filepath.ToSlash(rel)
		ref, err := metatree.RefFromString(joinShards(hex))
		if err != nil {
			// stray file, not a blob
			return nil
		}
		if !fn(ref) {
			return stop
		}
		return nil
	})
	if err == stop {
		return nil
	}
	return err
}

func joinShards(path string) string {
	joined := make([]byte, 0, len(path))
	for i := 0; i < len(path); i++ {
		if path[i] != '/' {
			joined = append(joined, path[i])
		}
	}
	return string(joined)
}
