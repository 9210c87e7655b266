// Package session models the transient editing session a user builds a form
// in, and the stores that keep it between requests.
//
// A Snapshot is read once per save. Its field and action entries are ordered:
// iteration order becomes persisted order. Keys are either the string form of
// a permanent id or a minted placeholder (see keys.go).
package session

import (
	"fmt"
	"slices"
)

// Entry is one field or action as edited in the session.
type Entry struct {
	Key   string         `json:"key" yaml:"key"`
	Props map[string]any `json:"props" yaml:"props"`
}

// Snapshot is the state of one editing session.
//
// Field and action keys live in separate namespaces: permanent ids come from
// separate sequences, so a field and an action may share a key. Deletions
// are therefore tracked per section.
type Snapshot struct {
	Fields         []Entry  `json:"fields"`
	Actions        []Entry  `json:"actions"`
	DeletedFields  []string `json:"deletedFields,omitempty"`
	DeletedActions []string `json:"deletedActions,omitempty"`
}

// ActiveFields returns the field entries that are not marked deleted.
func (s *Snapshot) ActiveFields() []Entry {
	if s == nil {
		return nil
	}
	return active(s.Fields, s.DeletedFields)
}

// ActiveActions returns the action entries that are not marked deleted.
func (s *Snapshot) ActiveActions() []Entry {
	if s == nil {
		return nil
	}
	return active(s.Actions, s.DeletedActions)
}

func active(entries []Entry, deleted []string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !slices.Contains(deleted, e.Key) {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks that keys are non-empty and unique within each list.
func (s *Snapshot) Validate() error {
	if err := validateKeys("field", s.Fields); err != nil {
		return err
	}
	return validateKeys("action", s.Actions)
}

func validateKeys(kind string, entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Key == "" {
			return fmt.Errorf("%s entry %d has an empty key", kind, i)
		}
		if seen[e.Key] {
			return fmt.Errorf("duplicate %s key %q", kind, e.Key)
		}
		seen[e.Key] = true
	}
	return nil
}

// AddField appends a new field entry under a freshly minted key and returns
// the key.
func (s *Snapshot) AddField(m KeyMinter, props map[string]any) string {
	key := m.Generate()
	s.Fields = append(s.Fields, Entry{Key: key, Props: props})
	return key
}

// AddAction appends a new action entry under a freshly minted key.
func (s *Snapshot) AddAction(m KeyMinter, props map[string]any) string {
	key := m.Generate()
	s.Actions = append(s.Actions, Entry{Key: key, Props: props})
	return key
}

// PutField replaces the props of an existing field entry, or appends it.
func (s *Snapshot) PutField(key string, props map[string]any) {
	s.Fields = put(s.Fields, key, props)
}

// PutAction replaces the props of an existing action entry, or appends it.
func (s *Snapshot) PutAction(key string, props map[string]any) {
	s.Actions = put(s.Actions, key, props)
}

func put(entries []Entry, key string, props map[string]any) []Entry {
	for i := range entries {
		if entries[i].Key == key {
			entries[i].Props = props
			return entries
		}
	}
	return append(entries, Entry{Key: key, Props: props})
}

// MarkFieldDeleted records a field key as deleted. The entry stays in the
// snapshot but ActiveFields skips it. Actions are not affected.
func (s *Snapshot) MarkFieldDeleted(key string) {
	s.DeletedFields = markDeleted(s.DeletedFields, key)
}

// MarkActionDeleted records an action key as deleted.
func (s *Snapshot) MarkActionDeleted(key string) {
	s.DeletedActions = markDeleted(s.DeletedActions, key)
}

func markDeleted(deleted []string, key string) []string {
	if slices.Contains(deleted, key) {
		return deleted
	}
	return append(deleted, key)
}
