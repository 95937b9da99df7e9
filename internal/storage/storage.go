// Package storage keeps generated spreadsheets until they are downloaded.
//
// Files are written under a temporary name and renamed into place, so a
// download never sees a partial file. A download first claims the file by
// renaming it; only one claim can succeed, which makes every file
// downloadable exactly once.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a file does not exist or is already
	// claimed by another download.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidName is returned for names that could escape the store.
	ErrInvalidName = errors.New("invalid file name")

	// ErrWrite is returned when a file cannot be stored.
	ErrWrite = errors.New("storage write failed")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

// ValidName reports whether name is a plain file name accepted by the store.
func ValidName(name string) bool {
	return validName.MatchString(name) && filepath.Base(name) == name
}

// Store holds generated files.
type Store interface {
	// Create stores the bytes produced by write under name.
	Create(ctx context.Context, name string, write func(io.Writer) error) error

	// Claim takes exclusive ownership of name for a download.
	Claim(ctx context.Context, name string) (*Claim, error)
}

// Claim is a file reserved for a single download.
type Claim struct {
	Name    string
	Size    int64
	ModTime time.Time
	Content io.ReadSeeker

	release func(remove bool) error
}

// Release ends the claim. With remove the file is deleted, otherwise it is
// put back so it can be claimed again.
func (c *Claim) Release(remove bool) error {
	return c.release(remove)
}

// LocalStore stores files in a directory on the local filesystem.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed and returns a store rooted there.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Create writes to a hidden temp file and renames it to name once write
// succeeds. The temp file is removed on every failure.
func (s *LocalStore) Create(ctx context.Context, name string, write func(io.Writer) error) (err error) {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Claim renames name to a private claim name and opens it.
func (s *LocalStore) Claim(ctx context.Context, name string) (*Claim, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, name)
	claimed := filepath.Join(s.dir, ".claim-"+uuid.NewString()+"-"+name)

	if err := os.Rename(path, claimed); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("claim %s: %w", name, err)
	}

	f, err := os.Open(claimed)
	if err != nil {
		os.Rename(claimed, path)
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		os.Rename(claimed, path)
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}

	return &Claim{
		Name:    name,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Content: f,
		release: func(remove bool) error {
			closeErr := f.Close()
			if remove {
				if err := os.Remove(claimed); err != nil {
					return fmt.Errorf("remove %s: %w", name, err)
				}
				return closeErr
			}
			if err := os.Rename(claimed, path); err != nil {
				return fmt.Errorf("restore %s: %w", name, err)
			}
			return closeErr
		},
	}, nil
}
