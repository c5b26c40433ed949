package state

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/roach88/reflow/internal/canonical"
)

// Record is a keyed attribute bag: the leaf value type of the state tree.
// Root-level records have ID 0; records inside a Map carry their entity id.
//
// Writes go through Set, which enforces the manager's read-only flag and
// registers change events. This is the explicit accessor replacing
// transparent write interception: the write path is a plain method call,
// observable and testable.
type Record struct {
	m      *Manager
	field  string
	id     int64
	fields map[string]any
}

func newRecord(m *Manager, field string, id int64, fields map[string]any) *Record {
	copied := make(map[string]any, len(fields))
	maps.Copy(copied, fields)
	return &Record{m: m, field: field, id: id, fields: copied}
}

// ID returns the entity id, 0 for root-level records.
func (r *Record) ID() int64 {
	return r.id
}

// Get returns the attribute value, nil when absent.
func (r *Record) Get(prop string) any {
	return r.fields[prop]
}

// Has reports whether the attribute exists.
func (r *Record) Has(prop string) bool {
	_, ok := r.fields[prop]
	return ok
}

// Set writes an attribute value.
//
// Fails with a read-only violation outside a mutation window. Writes whose
// value is canonically equal to the current one are suppressed before any
// event is queued, so redundant writes produce zero emissions on flush.
func (r *Record) Set(prop string, value any) error {
	if err := r.m.checkWritable(r.field, prop); err != nil {
		return err
	}
	if old, ok := r.fields[prop]; ok && canonical.Equal(old, value) {
		return nil
	}
	r.fields[prop] = value
	r.m.registerStateAction(r.field, prop, r.id, ActionUpdated, r)
	return nil
}

// merge shallow-merges fields into the record, one observable write per
// attribute.
func (r *Record) merge(fields map[string]any) error {
	for _, k := range sortedFieldKeys(fields) {
		if err := r.Set(k, fields[k]); err != nil {
			return err
		}
	}
	return nil
}

// Fields returns a shallow copy of the attributes. The copy shares no
// structure with the record, so serializing it leaks no manager internals.
func (r *Record) Fields() map[string]any {
	out := make(map[string]any, len(r.fields))
	maps.Copy(out, r.fields)
	return out
}

// MarshalJSON serializes the record as a plain attribute object.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields)
}

// sortedFieldKeys gives merges a deterministic write order so flushed
// event batches are reproducible run to run.
func sortedFieldKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
