package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/formforge/internal/form"
)

// FileStore keeps each session as a YAML document in a directory. JSON
// documents are accepted on read, since JSON is valid YAML.
//
// Update is serialized within the process only; processes sharing a
// directory should use the Redis store instead.
type FileStore struct {
	dir string
	mu  sync.Mutex // serializes Update
}

// NewFileStore returns a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(f.dir, id+".yaml"), nil
}

func (f *FileStore) Read(_ context.Context, id string) (*Snapshot, error) {
	p, err := f.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	return DecodeYAML(data)
}

func (f *FileStore) Write(_ context.Context, id string, s *Snapshot) error {
	p, err := f.path(id)
	if err != nil {
		return err
	}
	data, err := EncodeYAML(s)
	if err != nil {
		return err
	}

	// Write to a temp file and rename so readers never see a partial file.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", id, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("write session %s: %w", id, err)
	}
	return nil
}

func (f *FileStore) Update(ctx context.Context, id string, fn func(*Snapshot) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.Read(ctx, id)
	if errors.Is(err, ErrNotFound) {
		s, err = &Snapshot{}, nil
	}
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	return f.Write(ctx, id, s)
}

func (f *FileStore) Clear(_ context.Context, id string) error {
	p, err := f.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear session %s: %w", id, err)
	}
	return nil
}

// DecodeYAML parses a snapshot document:
//
//	fields:
//	  "12": {id: 12, label: Email, type: email}
//	  new1: {label: Name, type: text}
//	actions:
//	  new2: {type: form.email, properties: {mappedFields: {to: new1}}}
//	deleted:
//	  fields: ["13"]
//	  actions: ["4"]
//
// The order of the fields and actions mappings is preserved.
func DecodeYAML(data []byte) (*Snapshot, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}

	s := &Snapshot{}
	if doc.Kind == 0 {
		return s, nil
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("failed to parse session: document must be a mapping")
	}

	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		var err error
		switch key.Value {
		case "fields":
			s.Fields, err = decodeEntries("fields", val)
		case "actions":
			s.Actions, err = decodeEntries("actions", val)
		case "deleted":
			err = decodeDeleted(val, s)
		default:
			err = fmt.Errorf("line %d: unknown key %q", key.Line, key.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse session: %w", err)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	return s, nil
}

func decodeEntries(section string, n *yaml.Node) ([]Entry, error) {
	if n.Tag == "!!null" {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: %s must be a mapping of key to properties", n.Line, section)
	}

	entries := make([]Entry, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		props := map[string]any{}
		if val.Tag != "!!null" {
			if err := val.Decode(&props); err != nil {
				return nil, fmt.Errorf("line %d: %s.%s: %w", val.Line, section, key.Value, err)
			}
			props = form.NormalizeValue(props).(map[string]any)
		}
		entries = append(entries, Entry{Key: key.Value, Props: props})
	}
	return entries, nil
}

// decodeDeleted reads the per-section lists of deleted keys.
func decodeDeleted(n *yaml.Node, s *Snapshot) error {
	if n.Tag == "!!null" {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: deleted must be a mapping with fields and actions lists", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		var err error
		switch key.Value {
		case "fields":
			err = val.Decode(&s.DeletedFields)
		case "actions":
			err = val.Decode(&s.DeletedActions)
		default:
			err = fmt.Errorf("line %d: unknown key deleted.%s", key.Line, key.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// EncodeYAML renders a snapshot in the format DecodeYAML reads.
func EncodeYAML(s *Snapshot) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}

	for _, section := range []struct {
		name    string
		entries []Entry
	}{{"fields", s.Fields}, {"actions", s.Actions}} {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for _, e := range section.entries {
			val := &yaml.Node{}
			if err := val.Encode(e.Props); err != nil {
				return nil, fmt.Errorf("encode %s.%s: %w", section.name, e.Key, err)
			}
			m.Content = append(m.Content, strNode(e.Key), val)
		}
		root.Content = append(root.Content, strNode(section.name), m)
	}

	if len(s.DeletedFields) > 0 || len(s.DeletedActions) > 0 {
		del := &yaml.Node{Kind: yaml.MappingNode}
		for _, section := range []struct {
			name string
			keys []string
		}{{"fields", s.DeletedFields}, {"actions", s.DeletedActions}} {
			if len(section.keys) == 0 {
				continue
			}
			seq := &yaml.Node{Kind: yaml.SequenceNode}
			for _, k := range section.keys {
				seq.Content = append(seq.Content, strNode(k))
			}
			del.Content = append(del.Content, strNode(section.name), seq)
		}
		root.Content = append(root.Content, strNode("deleted"), del)
	}

	out, err := yaml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return out, nil
}

func strNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}
