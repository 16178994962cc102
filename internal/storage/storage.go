package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectStore is the file persistence boundary. The deployed adapter
// writes to local disk; a bucket-backed adapter would slot in behind the
// same interface.
type ObjectStore interface {
	Save(name string, r io.Reader) (path string, size int64, err error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}

type Disk struct {
	dir string
}

func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Disk{dir: dir}, nil
}

// Save writes the stream under a unique name derived from the original;
// the original name never touches the filesystem path.
func (d *Disk) Save(name string, r io.Reader) (string, int64, error) {
	ext := filepath.Ext(name)
	stored := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString(), ext)
	path := filepath.Join(d.dir, stored)

	out, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	return path, size, nil
}

func (d *Disk) Open(path string) (io.ReadCloser, error) {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, filepath.Clean(d.dir)+string(os.PathSeparator)) {
		return nil, os.ErrNotExist
	}
	return os.Open(clean)
}

func (d *Disk) Remove(path string) error {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, filepath.Clean(d.dir)+string(os.PathSeparator)) {
		return os.ErrNotExist
	}
	return os.Remove(clean)
}

var _ ObjectStore = (*Disk)(nil)
