package blob

import (
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
)

// Store keeps uploaded blobs on local disk under ULID object names. It is
// the durable storage behind the file service; metadata rows reference blobs
// by stored name only, never by absolute path.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func newObjectName(ext string) string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String() + ext
}

// Save streams r to a new blob and returns its object name and size.
func (s *Store) Save(r io.Reader, ext string) (string, int64, error) {
	name := newObjectName(ext)

	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.dir, name))
		return "", 0, err
	}
	return name, n, nil
}

// Open returns a reader over the named blob.
func (s *Store) Open(name string) (*os.File, error) {
	return os.Open(filepath.Join(s.dir, filepath.Base(name)))
}

// Remove deletes the named blob. A missing blob is not an error; cascade
// redelivery must be able to re-run cleanup safely.
func (s *Store) Remove(name string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
