package models

import "github.com/recrovit/rgfclient/internal/record"

// EntityKey identifies one row of an entity. Signature is issued by the
// server and must be sent back unchanged.
type EntityKey struct {
	Keys      *record.Record `json:"keys"`
	Signature string         `json:"signature,omitempty"`
}

// IsEmpty reports whether the key holds no key column.
func (k *EntityKey) IsEmpty() bool {
	return k == nil || k.Keys.Len() == 0
}

// Clone returns a deep copy of k.
func (k *EntityKey) Clone() *EntityKey {
	if k == nil {
		return nil
	}
	c := &EntityKey{Signature: k.Signature}
	if k.Keys != nil {
		c.Keys = k.Keys.Clone()
	}
	return c
}

// FormViewKey selects the row shown in the form view. RowIndex is the
// absolute row index, or -1.
type FormViewKey struct {
	EntityKey *EntityKey
	RowIndex  int
}

// NewFormViewKey returns the key of a new row.
func NewFormViewKey() *FormViewKey {
	return &FormViewKey{EntityKey: &EntityKey{Keys: record.New()}, RowIndex: -1}
}
