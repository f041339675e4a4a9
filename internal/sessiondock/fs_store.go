package sessiondock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// SessionFileSuffix marks stored blobs that hold session metadata. The data
// directory also holds raw uploads, so the filesystem backend only reports
// suffixed entries from List.
const SessionFileSuffix = ".json"

// DirStore keeps one file per blob under a single data directory. The
// directory is created on construction and shared with raw uploads.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, ErrInvalidInput
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &DirStore{dir: abs}, nil
}

// Dir reports the absolute data directory backing the store.
func (s *DirStore) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// blobPath rejects identifiers that would resolve outside the data dir.
func (s *DirStore) blobPath(identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || identifier == "." || identifier == ".." {
		return "", ErrInvalidInput
	}
	if identifier != filepath.Base(identifier) || strings.ContainsAny(identifier, `/\`) {
		return "", ErrInvalidInput
	}
	return filepath.Join(s.dir, identifier), nil
}

func (s *DirStore) Save(identifier string, data []byte) error {
	path, err := s.blobPath(identifier)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *DirStore) List() ([]StoredBlob, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	blobs := make([]StoredBlob, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), SessionFileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Deleted between ReadDir and Info; the next List won't see it.
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		blobs = append(blobs, StoredBlob{
			Identifier:   entry.Name(),
			Bytes:        data,
			LastModified: info.ModTime(),
		})
	}
	return blobs, nil
}

func (s *DirStore) Get(identifier string) (StoredBlob, error) {
	path, err := s.blobPath(identifier)
	if err != nil {
		return StoredBlob{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StoredBlob{}, ErrNotFound
		}
		return StoredBlob{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StoredBlob{}, ErrNotFound
		}
		return StoredBlob{}, err
	}
	return StoredBlob{Identifier: identifier, Bytes: data, LastModified: info.ModTime()}, nil
}

func (s *DirStore) Exists(identifier string) (bool, error) {
	path, err := s.blobPath(identifier)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *DirStore) Rename(oldIdentifier, newIdentifier string) error {
	oldPath, err := s.blobPath(oldIdentifier)
	if err != nil {
		return err
	}
	newPath, err := s.blobPath(newIdentifier)
	if err != nil {
		return err
	}
	if _, err := os.Stat(oldPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if _, err := os.Stat(newPath); err == nil {
		return ErrConflict
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.Rename(oldPath, newPath)
}

func (s *DirStore) UpdateBytes(identifier string, data []byte) error {
	path, err := s.blobPath(identifier)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *DirStore) Delete(identifier string) error {
	path, err := s.blobPath(identifier)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
