package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formforge/internal/form"
)

func TestSnapshot_ActiveSkipsDeleted(t *testing.T) {
	s := &Snapshot{
		Fields: []Entry{
			{Key: "1", Props: map[string]any{"id": 1}},
			{Key: "new2", Props: map[string]any{"label": "B"}},
			{Key: "3", Props: map[string]any{"id": 3}},
		},
		Actions:        []Entry{{Key: "new9", Props: map[string]any{}}},
		DeletedFields:  []string{"3"},
		DeletedActions: []string{"new9"},
	}

	var keys []string
	for _, e := range s.ActiveFields() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"1", "new2"}, keys)
	assert.Empty(t, s.ActiveActions())

	var nilSnap *Snapshot
	assert.Nil(t, nilSnap.ActiveFields())
}

func TestSnapshot_Validate(t *testing.T) {
	ok := &Snapshot{Fields: []Entry{{Key: "a"}, {Key: "b"}}}
	require.NoError(t, ok.Validate())

	dup := &Snapshot{Fields: []Entry{{Key: "a"}, {Key: "a"}}}
	err := dup.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate field key "a"`)

	empty := &Snapshot{Actions: []Entry{{Key: ""}}}
	require.Error(t, empty.Validate())
}

func TestSnapshot_Editing(t *testing.T) {
	s := &Snapshot{}
	m := NewFixedMinter("newa")

	k1 := s.AddField(m, map[string]any{"label": "Email"})
	k2 := s.AddField(m, map[string]any{"label": "Name"})
	assert.Equal(t, "newa", k1)
	assert.Equal(t, "new2", k2)

	s.PutField(k1, map[string]any{"label": "E-mail"})
	require.Len(t, s.Fields, 2)
	assert.Equal(t, "E-mail", s.Fields[0].Props["label"])

	ak := s.AddAction(m, map[string]any{"type": "form.email"})
	s.PutAction(ak, map[string]any{"type": "form.redirect"})
	require.Len(t, s.Actions, 1)
	assert.Equal(t, "form.redirect", s.Actions[0].Props["type"])

	s.MarkFieldDeleted(k2)
	s.MarkFieldDeleted(k2)
	assert.Equal(t, []string{k2}, s.DeletedFields)
	assert.Empty(t, s.DeletedActions)
}

func TestSnapshot_DeletesAreScopedToSection(t *testing.T) {
	// Stored fields and actions number independently, so keys collide.
	s := &Snapshot{
		Fields:  []Entry{{Key: "1"}, {Key: "2"}},
		Actions: []Entry{{Key: "1"}},
	}

	s.MarkFieldDeleted("1")
	require.Len(t, s.ActiveFields(), 1)
	assert.Equal(t, "2", s.ActiveFields()[0].Key)
	require.Len(t, s.ActiveActions(), 1)
	assert.Equal(t, "1", s.ActiveActions()[0].Key)

	s.MarkActionDeleted("1")
	assert.Empty(t, s.ActiveActions())
	assert.Len(t, s.ActiveFields(), 1)
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	err := st.Update(ctx, "3", func(s *Snapshot) error {
		assert.Empty(t, s.Fields)
		s.PutField("new1", map[string]any{"label": "A"})
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = st.Update(ctx, "3", func(s *Snapshot) error {
		s.MarkFieldDeleted("new1")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := st.Read(ctx, "3")
	require.NoError(t, err)
	assert.Empty(t, got.DeletedFields)
	require.Len(t, got.Fields, 1)
}

func TestUUIDMinter(t *testing.T) {
	m := UUIDMinter{}
	a, b := m.Generate(), m.Generate()

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "new"))
	assert.Len(t, a, 3+32)
	assert.True(t, IsTransient(a))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient("new1"))
	assert.True(t, IsTransient("new0f3a"))
	assert.False(t, IsTransient("42"))
	assert.False(t, IsTransient(42))
	assert.False(t, IsTransient(""))
	assert.False(t, IsTransient("renew"))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	_, err := st.Read(ctx, "7")
	require.ErrorIs(t, err, ErrNotFound)

	s := &Snapshot{Fields: []Entry{{Key: "new1", Props: map[string]any{"label": "A"}}}}
	require.NoError(t, st.Write(ctx, "7", s))

	// Mutating the caller's copy does not leak into the store.
	s.Fields = append(s.Fields, Entry{Key: "new2"})

	got, err := st.Read(ctx, "7")
	require.NoError(t, err)
	assert.Len(t, got.Fields, 1)

	require.NoError(t, st.Clear(ctx, "7"))
	_, err = st.Read(ctx, "7")
	require.ErrorIs(t, err, ErrNotFound)

	bad := &Snapshot{Fields: []Entry{{Key: "x"}, {Key: "x"}}}
	require.Error(t, st.Write(ctx, "8", bad))
}

func TestFromForm(t *testing.T) {
	f := form.New("Contact")
	hide := false
	f.Fields.Add(&form.Field{ID: 4, Label: "Email", Alias: "email", Type: "email", ShowLabel: &hide})
	f.Fields.Add(&form.Field{ID: 9, Label: "Send", Alias: "send", Type: "button"})
	f.Actions.Add(&form.Action{ID: 2, Name: "Notify", Type: "form.email",
		Properties: map[string]any{"mappedFields": map[string]any{"to": int64(4)}}})

	s := FromForm(f)
	require.Len(t, s.Fields, 2)
	assert.Equal(t, "4", s.Fields[0].Key)
	assert.Equal(t, int64(4), s.Fields[0].Props["id"])
	assert.Equal(t, false, s.Fields[0].Props["showLabel"])
	assert.NotContains(t, s.Fields[1].Props, "saveResult")
	assert.Equal(t, "9", s.Fields[1].Key)

	require.Len(t, s.Actions, 1)
	assert.Equal(t, "2", s.Actions[0].Key)
	assert.Equal(t, "Notify", s.Actions[0].Props["name"])

	// Properties are copied.
	s.Actions[0].Props["properties"].(map[string]any)["extra"] = true
	assert.NotContains(t, f.Actions.All()[0].Properties, "extra")
	require.NoError(t, s.Validate())
}
