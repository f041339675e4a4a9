package sessiondock

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("identifier conflict")
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotImplemented   = errors.New("not implemented")
)

// StoredBlob is the persisted unit: an opaque payload addressed by a unique
// identifier, stamped with its last write time.
type StoredBlob struct {
	Identifier   string
	Bytes        []byte
	LastModified time.Time
}

// RecordStore is the byte-storage contract every backend satisfies. List is
// re-executed fresh on each call and carries no ordering guarantee. Rename
// fails with ErrConflict when the target identifier already exists; Save and
// UpdateBytes both refresh the blob's LastModified.
type RecordStore interface {
	Save(identifier string, data []byte) error
	List() ([]StoredBlob, error)
	Get(identifier string) (StoredBlob, error)
	Exists(identifier string) (bool, error)
	Rename(oldIdentifier, newIdentifier string) error
	UpdateBytes(identifier string, data []byte) error
	Delete(identifier string) error
}
