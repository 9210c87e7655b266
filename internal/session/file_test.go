package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
fields:
  new_z:
    label: Zip
    type: text
  "12":
    id: 12
    label: Email
    type: email
  new_a:
    label: Submit
    type: button
actions:
  new_m:
    type: form.email
    properties:
      mappedFields:
        to: new_z
deleted:
  fields: ["13"]
  actions: ["13"]
`

func TestDecodeYAML_PreservesOrder(t *testing.T) {
	s, err := DecodeYAML([]byte(sampleYAML))
	require.NoError(t, err)

	var keys []string
	for _, e := range s.Fields {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"new_z", "12", "new_a"}, keys)

	assert.Equal(t, 12, s.Fields[1].Props["id"])
	assert.Equal(t, "Email", s.Fields[1].Props["label"])

	require.Len(t, s.Actions, 1)
	props := s.Actions[0].Props["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"to": "new_z"}, props["mappedFields"])

	assert.Equal(t, []string{"13"}, s.DeletedFields)
	assert.Equal(t, []string{"13"}, s.DeletedActions)
}

func TestDecodeYAML_JSON(t *testing.T) {
	s, err := DecodeYAML([]byte(`{"fields": {"new2": {"label": "B"}, "new1": {"label": "A"}}}`))
	require.NoError(t, err)
	require.Len(t, s.Fields, 2)
	assert.Equal(t, "new2", s.Fields[0].Key)
	assert.Equal(t, "new1", s.Fields[1].Key)
}

func TestDecodeYAML_Errors(t *testing.T) {
	tests := map[string]string{
		"not a mapping":   "- a\n- b\n",
		"unknown key":     "fieldz: {}\n",
		"fields is list":  "fields: [a, b]\n",
		"duplicate key":   "fields:\n  a: {}\n  a: {}\n",
		"bad yaml":        "fields: {a: [}\n",
		"deleted is list": "deleted: [\"13\"]\n",
		"deleted section": "deleted:\n  widgets: [a]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeYAML([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestDecodeYAML_Empty(t *testing.T) {
	s, err := DecodeYAML(nil)
	require.NoError(t, err)
	assert.Empty(t, s.Fields)

	s, err = DecodeYAML([]byte("fields:\n  new1:\n"))
	require.NoError(t, err)
	require.Len(t, s.Fields, 1)
	assert.Empty(t, s.Fields[0].Props)
}

func TestEncodeYAML_RoundTripKeepsOrderAndStringKeys(t *testing.T) {
	in, err := DecodeYAML([]byte(sampleYAML))
	require.NoError(t, err)

	data, err := EncodeYAML(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"12":`)

	out, err := DecodeYAML(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "sessions")
	st, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = st.Read(ctx, "5")
	require.ErrorIs(t, err, ErrNotFound)

	s := &Snapshot{Fields: []Entry{
		{Key: "new2", Props: map[string]any{"label": "Second"}},
		{Key: "new1", Props: map[string]any{"label": "First"}},
	}}
	require.NoError(t, st.Write(ctx, "5", s))

	_, err = os.Stat(filepath.Join(dir, "5.yaml"))
	require.NoError(t, err)

	got, err := st.Read(ctx, "5")
	require.NoError(t, err)
	require.Len(t, got.Fields, 2)
	assert.Equal(t, "new2", got.Fields[0].Key)

	require.NoError(t, st.Clear(ctx, "5"))
	require.NoError(t, st.Clear(ctx, "5"))
	_, err = st.Read(ctx, "5")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEncodeYAML_OmitsEmptyDeletedSections(t *testing.T) {
	data, err := EncodeYAML(&Snapshot{DeletedActions: []string{"4"}})
	require.NoError(t, err)
	assert.Contains(t, string(data), "deleted:\n    actions:")
	assert.NotContains(t, string(data), "deleted:\n    fields:")

	out, err := DecodeYAML(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, out.DeletedActions)
	assert.Empty(t, out.DeletedFields)
}

func TestFileStore_Update(t *testing.T) {
	ctx := context.Background()
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"new1", "new2"} {
		require.NoError(t, st.Update(ctx, "7", func(s *Snapshot) error {
			s.PutField(key, map[string]any{"label": key})
			return nil
		}))
	}
	require.NoError(t, st.Update(ctx, "7", func(s *Snapshot) error {
		s.MarkActionDeleted("new1")
		return nil
	}))

	got, err := st.Read(ctx, "7")
	require.NoError(t, err)
	require.Len(t, got.ActiveFields(), 2)
	assert.Equal(t, []string{"new1"}, got.DeletedActions)
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = st.Read(context.Background(), "../etc/passwd")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
