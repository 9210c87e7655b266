package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/sqldb"
)

// createTestStore creates a new SQLite store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(sqldb.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleForm() *form.Form {
	f := form.New("Contact Us")
	f.Alias = "contactus"
	f.Description = "Get in touch"
	saveResult := false
	f.Fields.Add(&form.Field{Order: 1, Label: "Email", Alias: "email", Type: "email", IsRequired: true, SessionID: "new1"})
	f.Fields.Add(&form.Field{
		Order: 2, Label: "Topic", Alias: "topic", Type: "select", SessionID: "new2",
		SaveResult: &saveResult,
		Properties: map[string]any{"list": []any{"sales", "support"}},
	})
	return f
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(sqldb.DriverSQLite, path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, sqldb.DriverSQLite, s.Dialect().Name())
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(sqldb.DriverSQLite, path)
		require.NoError(t, err, "iteration %d", i)
		s.Close()
	}

	s, err := Open(sqldb.DriverSQLite, path)
	require.NoError(t, err)
	defer s.Close()

	var version, rows int
	require.NoError(t, s.DB().QueryRow("SELECT MAX(version), COUNT(*) FROM schema_version").Scan(&version, &rows))
	assert.Equal(t, currentSchemaVersion, version)
	assert.Equal(t, 1, rows)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	require.Error(t, err)
}

func TestSaveAndLoadForm(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	f := sampleForm()

	created, err := s.SaveForm(ctx, f)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotZero(t, f.ID)

	require.NoError(t, s.SaveFields(ctx, f))
	for _, fld := range f.Fields.All() {
		assert.NotZero(t, fld.ID)
	}

	got, err := s.LoadForm(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Contact Us", got.Name)
	assert.Equal(t, "contactus", got.Alias)
	assert.Equal(t, "Get in touch", got.Description)

	fields := got.Fields.All()
	require.Len(t, fields, 2)
	assert.Equal(t, "email", fields[0].Alias)
	assert.True(t, fields[0].IsRequired)
	assert.Nil(t, fields[0].SaveResult)
	assert.Equal(t, "new1", fields[0].SessionID)
	assert.Same(t, got, fields[0].Form)

	require.NotNil(t, fields[1].SaveResult)
	assert.False(t, *fields[1].SaveResult)
	assert.Equal(t, map[string]any{"list": []any{"sales", "support"}}, fields[1].Properties)

	byID, ok := got.Fields.ByID(fields[1].ID)
	require.True(t, ok)
	assert.Same(t, fields[1], byID)
}

func TestSaveForm_UpdateKeepsAlias(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	f := sampleForm()
	_, err := s.SaveForm(ctx, f)
	require.NoError(t, err)

	f.Name = "Contact"
	f.Alias = "ignored"
	created, err := s.SaveForm(ctx, f)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := s.LoadForm(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Contact", got.Name)
	assert.Equal(t, "contactus", got.Alias)
}

func TestSaveForm_UpdateMissing(t *testing.T) {
	s := createTestStore(t)
	f := form.New("Ghost")
	f.ID = 404

	_, err := s.SaveForm(context.Background(), f)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadForm_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.LoadForm(context.Background(), 99)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSaveFields_DeletesUpdatesInserts(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	f := sampleForm()
	_, err := s.SaveForm(ctx, f)
	require.NoError(t, err)
	require.NoError(t, s.SaveFields(ctx, f))

	email := f.Fields.All()[0]
	emailID := email.ID
	email.Label = "Work email"
	email.Order = 2

	// Topic is dropped and a new field takes over its alias.
	next := form.NewCollection[*form.Field]()
	next.Add(&form.Field{Order: 1, Label: "Topic", Alias: "topic", Type: "text", SessionID: "new9"})
	next.Add(email)
	f.Fields = next
	require.NoError(t, s.SaveFields(ctx, f))

	got, err := s.LoadForm(ctx, f.ID)
	require.NoError(t, err)
	fields := got.Fields.All()
	require.Len(t, fields, 2)
	assert.Equal(t, "topic", fields[0].Alias)
	assert.Equal(t, "text", fields[0].Type)
	assert.Equal(t, emailID, fields[1].ID)
	assert.Equal(t, "Work email", fields[1].Label)
	assert.Equal(t, 2, fields[1].Order)
}

func TestSaveFields_DuplicateAliasRejected(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	f := sampleForm()
	f.Fields.Add(&form.Field{Order: 3, Alias: "email", Type: "text", SessionID: "new3"})
	_, err := s.SaveForm(ctx, f)
	require.NoError(t, err)

	require.Error(t, s.SaveFields(ctx, f))
}

func TestSaveActions_RoundTripsMappedFieldIDs(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	f := sampleForm()
	_, err := s.SaveForm(ctx, f)
	require.NoError(t, err)
	require.NoError(t, s.SaveFields(ctx, f))

	emailID := f.Fields.All()[0].ID
	f.Actions.Add(&form.Action{
		Order: 1, Name: "Notify", Type: "form.email",
		Properties: map[string]any{
			"subject":      "New lead",
			"ratio":        0.5,
			"mappedFields": map[string]any{"to": emailID},
		},
	})
	require.NoError(t, s.SaveActions(ctx, f))
	actionID := f.Actions.All()[0].ID
	require.NotZero(t, actionID)

	got, err := s.LoadForm(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Actions.Len())
	act := got.Actions.All()[0]
	assert.Equal(t, actionID, act.ID)
	assert.Equal(t, "New lead", act.Properties["subject"])
	assert.Equal(t, 0.5, act.Properties["ratio"])
	assert.Equal(t, map[string]any{"to": emailID}, act.MappedFields())

	f.Actions = form.NewCollection[*form.Action]()
	require.NoError(t, s.SaveActions(ctx, f))
	got, err = s.LoadForm(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Actions.Len())
}

func TestSaveCachedHTML(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	f := sampleForm()
	_, err := s.SaveForm(ctx, f)
	require.NoError(t, err)

	require.NoError(t, s.SaveCachedHTML(ctx, f.ID, "<form></form>"))
	got, err := s.LoadForm(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "<form></form>", got.CachedHTML)
}

func TestDeleteForm_Cascades(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	f := sampleForm()
	_, err := s.SaveForm(ctx, f)
	require.NoError(t, err)
	require.NoError(t, s.SaveFields(ctx, f))

	deleted, err := s.DeleteForm(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM form_fields").Scan(&n))
	assert.Equal(t, 0, n)

	deleted, err = s.DeleteForm(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestListForms(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	forms, err := s.ListForms(ctx)
	require.NoError(t, err)
	assert.Empty(t, forms)

	for _, name := range []string{"A", "B"} {
		_, err := s.SaveForm(ctx, form.New(name))
		require.NoError(t, err)
	}

	forms, err = s.ListForms(ctx)
	require.NoError(t, err)
	require.Len(t, forms, 2)
	assert.Equal(t, "A", forms[0].Name)
	assert.Equal(t, "B", forms[1].Name)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx *Tx) error {
		f := sampleForm()
		if _, err := tx.SaveForm(ctx, f); err != nil {
			return err
		}
		if err := tx.Lock(ctx, f.ID); err != nil {
			return err
		}
		if err := tx.SaveFields(ctx, f); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	forms, err := s.ListForms(ctx)
	require.NoError(t, err)
	assert.Empty(t, forms)
}

func TestWithTx_Commits(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	f := sampleForm()

	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.SaveForm(ctx, f); err != nil {
			return err
		}
		_, err := tx.Querier().ExecContext(ctx, `CREATE TABLE scratch (id INTEGER)`)
		return err
	})
	require.NoError(t, err)

	_, err = s.LoadForm(ctx, f.ID)
	require.NoError(t, err)
	exists, err := s.Dialect().TableExists(ctx, s.DB(), "scratch")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUnmarshalProps(t *testing.T) {
	props, err := unmarshalProps(`{"a": 1, "b": 1.5, "c": {"d": [2, "x"]}}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": int64(1),
		"b": 1.5,
		"c": map[string]any{"d": []any{int64(2), "x"}},
	}, props)

	props, err = unmarshalProps("{}")
	require.NoError(t, err)
	assert.Nil(t, props)

	_, err = unmarshalProps("{")
	require.Error(t, err)
}
