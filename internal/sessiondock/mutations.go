package sessiondock

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Controller handles the mutating operations on stored records. The hub is
// optional; a nil hub drops events.
type Controller struct {
	store RecordStore
	hub   *Hub
}

func NewController(store RecordStore, hub *Hub) *Controller {
	return &Controller{store: store, hub: hub}
}

// Rename moves a record to newName + ".json". The target must be free; the
// conflict check lives inside each backend so there is no check-then-act
// window here.
func (c *Controller) Rename(identifier, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrInvalidInput
	}
	newIdentifier := newName + SessionFileSuffix
	if newIdentifier == identifier {
		exists, err := c.store.Exists(identifier)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return nil
	}
	if err := c.store.Rename(identifier, newIdentifier); err != nil {
		return err
	}
	c.hub.Publish(ChangeEvent{Type: ChangeRenamed, Identifier: newIdentifier})
	return nil
}

// UpdateContent replaces the record's payload with the serialized form of
// payload. The caller is trusted to submit well-formed structured data; no
// schema is enforced beyond JSON encodability.
func (c *Controller) UpdateContent(identifier string, payload any) error {
	if payload == nil {
		return ErrInvalidInput
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := c.store.UpdateBytes(identifier, data); err != nil {
		return err
	}
	c.hub.Publish(ChangeEvent{Type: ChangeUpdated, Identifier: identifier})
	return nil
}

func (c *Controller) Delete(identifier string) error {
	if err := c.store.Delete(identifier); err != nil {
		return err
	}
	c.hub.Publish(ChangeEvent{Type: ChangeDeleted, Identifier: identifier})
	return nil
}

// GetOne returns the normalized view of one record. The raw bytes stay
// reachable through the store for callers that need them.
func (c *Controller) GetOne(identifier string) (SessionRecord, error) {
	blob, err := c.store.Get(identifier)
	if err != nil {
		return SessionRecord{}, err
	}
	return NormalizeRecord(blob.Identifier, blob.Bytes, blob.LastModified), nil
}
