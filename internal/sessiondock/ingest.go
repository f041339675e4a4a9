package sessiondock

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Ingestor assigns storage identifiers to uploaded blobs and performs the
// single Save that persists them.
type Ingestor struct {
	store RecordStore
	hub   *Hub
	newID func() string
}

func NewIngestor(store RecordStore, hub *Hub) *Ingestor {
	return &Ingestor{store: store, hub: hub, newID: uuid.NewString}
}

// Accept stores one uploaded blob and returns its identifier. A
// client-supplied filename is kept after sanitizing to a bare base name;
// otherwise a random identifier preserving the client's extension is
// assigned.
func (i *Ingestor) Accept(filename string, data []byte) (string, error) {
	identifier := sanitizeFilename(filename)
	if identifier == "" {
		ext := filepath.Ext(filename)
		if ext == "." {
			ext = ""
		}
		identifier = i.newID() + ext
	}
	if err := i.store.Save(identifier, data); err != nil {
		return "", err
	}
	i.hub.Publish(ChangeEvent{Type: ChangeCreated, Identifier: identifier})
	return identifier, nil
}

// sanitizeFilename reduces a client filename to a safe base name, or ""
// when nothing usable remains.
func sanitizeFilename(filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return ""
	}
	base := filepath.Base(filepath.Clean(strings.ReplaceAll(filename, `\`, "/")))
	if base == "." || base == ".." || base == "/" || base == "" {
		return ""
	}
	return base
}
