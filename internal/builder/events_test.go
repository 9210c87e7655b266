package builder

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/session"
)

// recorder logs every event it sees as "hook:formID:isNew".
type recorder struct {
	calls []string
}

func (r *recorder) hooks() Hooks {
	note := func(name string, e Event) {
		r.calls = append(r.calls, fmt.Sprintf("%s:%d:%t", name, e.Form.ID, e.IsNew))
	}
	return Hooks{
		OnPreSave:    func(_ context.Context, e Event) error { note("preSave", e); return nil },
		OnPostSave:   func(_ context.Context, e Event) { note("postSave", e) },
		OnPreDelete:  func(_ context.Context, e Event) error { note("preDelete", e); return nil },
		OnPostDelete: func(_ context.Context, e Event) { note("postDelete", e) },
	}
}

func TestListener_SaveAndDelete(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	b, _ := newTestBuilder(t, WithListener(rec.hooks()))

	created, err := b.Save(ctx, form.New("Contact"), contactSession())
	require.NoError(t, err)
	_, err = b.Save(ctx, created, &session.Snapshot{})
	require.NoError(t, err)
	_, err = b.Delete(ctx, created.ID)
	require.NoError(t, err)

	id := created.ID
	assert.Equal(t, []string{
		fmt.Sprintf("preSave:%d:true", id),
		fmt.Sprintf("postSave:%d:true", id),
		fmt.Sprintf("preSave:%d:false", id),
		fmt.Sprintf("postSave:%d:false", id),
		fmt.Sprintf("preDelete:%d:false", id),
		fmt.Sprintf("postDelete:%d:false", id),
	}, rec.calls)
}

func TestListener_PreSaveSeesReconciledForm(t *testing.T) {
	var fields, actions int
	b, _ := newTestBuilder(t, WithListener(Hooks{
		OnPreSave: func(_ context.Context, e Event) error {
			fields, actions = e.Form.Fields.Len(), e.Form.Actions.Len()
			assert.NotZero(t, e.Form.ID)
			assert.NotEmpty(t, e.Form.CachedHTML)
			return nil
		},
	}))

	_, err := b.Save(context.Background(), form.New("Contact"), contactSession())
	require.NoError(t, err)
	assert.Equal(t, 3, fields)
	assert.Equal(t, 1, actions)
}

func TestListener_PreSaveErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	veto := Hooks{OnPreSave: func(context.Context, Event) error { return errors.New("quota exceeded") }}
	b, st := newTestBuilder(t, WithListener(rec.hooks()), WithListener(veto))

	_, err := b.Save(ctx, form.New("Contact"), contactSession())
	require.ErrorContains(t, err, "quota exceeded")

	forms, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, forms)
	assert.Equal(t, 0, resultsTableCount(t, st))

	// The first listener ran, but no PostSave followed the rollback.
	require.Len(t, rec.calls, 1)
	assert.Contains(t, rec.calls[0], "preSave:")
}

func TestListener_PreDeleteErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	var posted []int64
	b, st := newTestBuilder(t, WithListener(Hooks{
		OnPreDelete: func(_ context.Context, e Event) error {
			if e.Form.Alias == "beta" {
				return errors.New("form is protected")
			}
			return nil
		},
		OnPostDelete: func(_ context.Context, e Event) { posted = append(posted, e.Form.ID) },
	}))

	a, err := b.Save(ctx, form.New("Alpha"), contactSession())
	require.NoError(t, err)
	c, err := b.Save(ctx, form.New("Beta"), contactSession())
	require.NoError(t, err)

	_, err = b.DeleteMany(ctx, []int64{a.ID, c.ID})
	require.ErrorContains(t, err, "form is protected")
	assert.Equal(t, 2, resultsTableCount(t, st))
	assert.Empty(t, posted)

	_, err = b.Load(ctx, a.ID)
	require.NoError(t, err)

	deleted, err := b.DeleteMany(ctx, []int64{a.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, deleted)
	assert.Equal(t, []int64{a.ID}, posted)
}
