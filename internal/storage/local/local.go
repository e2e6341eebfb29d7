// Package local implements storage.Store on a local directory. It backs dry
// runs and tests; keys map onto paths below the root.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"courtclip/internal/services"
	"courtclip/internal/storage"
)

// Store is a filesystem-backed storage.Store.
type Store struct {
	root string
}

var _ storage.Store = (*Store)(nil)

// New creates the root directory if needed.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("local storage root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve local root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create local root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (s *Store) Root() string { return s.root }

// Path maps a key to its filesystem location.
func (s *Store) Path(key string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	return filepath.Join(s.root, clean)
}

func (s *Store) List(ctx context.Context, prefix string, recursive bool) ([]storage.Object, error) {
	dir := s.Path(prefix)
	var objects []storage.Object
	add := func(p string, info fs.FileInfo) {
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return
		}
		objects = append(objects, storage.Object{
			Key:      filepath.ToSlash(rel),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
	}

	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, services.Wrap(services.ErrTransientIO, "storage", "list", prefix, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			add(filepath.Join(dir, entry.Name()), info)
		}
		return objects, nil
	}

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		add(p, info)
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "storage", "list", prefix, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *Store) Download(_ context.Context, key, localPath string) error {
	if err := copyFile(s.Path(key), localPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "storage", "download", key, err)
		}
		return services.Wrap(services.ErrTransientIO, "storage", "download", key, err)
	}
	return nil
}

func (s *Store) Upload(_ context.Context, localPath, key string) error {
	if err := copyFile(localPath, s.Path(key)); err != nil {
		return services.Wrap(services.ErrTransientIO, "storage", "upload", key, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrTransientIO, "storage", "delete", key, err)
	}
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, services.Wrap(services.ErrTransientIO, "storage", "stat", key, err)
	}
	return !info.IsDir(), nil
}

// PublicURL returns a file:// URL; local storage has no public endpoint.
func (s *Store) PublicURL(_ context.Context, key string) (string, error) {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(s.Path(key))}
	return u.String(), nil
}

func (s *Store) ReadObject(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "storage", "read", key, err)
		}
		return nil, services.Wrap(services.ErrTransientIO, "storage", "read", key, err)
	}
	return data, nil
}

// WriteObject writes to a temporary file and renames it into place so readers
// never observe a partial document.
func (s *Store) WriteObject(_ context.Context, key string, data []byte, _ string) error {
	if err := writeAtomic(s.Path(key), data); err != nil {
		return services.Wrap(services.ErrTransientIO, "storage", "write", key, err)
	}
	return nil
}

func writeAtomic(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dst)
}
