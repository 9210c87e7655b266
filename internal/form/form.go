// Package form defines the form definition model: a Form owning ordered
// Fields and Actions.
//
// Entities are mutated only through explicit allow-lists (see attrs.go):
// Field.TrySet and Action.TrySet report whether an attribute is settable
// instead of dispatching on method names at runtime.
package form

// Field types whose submissions never produce a results column.
const (
	TypeButton   = "button"
	TypeFreetext = "freetext"
)

// Fixed identity columns of every results table. Field aliases must not
// take these names.
const (
	ColumnSubmissionID = "submission_id"
	ColumnFormID       = "form_id"
)

// ReservedAliases returns the names no field alias may use.
func ReservedAliases() []string {
	return []string{ColumnSubmissionID, ColumnFormID}
}

// Form is the top-level definition being built.
type Form struct {
	ID          int64  `json:"id,omitempty"` // zero until first persisted
	Name        string `json:"name"`
	Alias       string `json:"alias"` // derived once at creation
	Description string `json:"description,omitempty"`
	CachedHTML  string `json:"-"`

	Fields  *Collection[*Field]  `json:"fields"`
	Actions *Collection[*Action] `json:"actions"`
}

// New returns an unsaved form with empty collections.
func New(name string) *Form {
	return &Form{
		Name:    name,
		Fields:  NewCollection[*Field](),
		Actions: NewCollection[*Action](),
	}
}

// IsNew reports whether the form has never been persisted.
func (f *Form) IsNew() bool { return f.ID == 0 }

// Field is one input element of a form.
type Field struct {
	ID    int64 `json:"id,omitempty"`
	Form  *Form `json:"-"`
	Order int   `json:"order"` // 1-based

	Label string `json:"label"`
	Alias string `json:"alias"`
	Type  string `json:"type"`

	DefaultValue      string         `json:"defaultValue,omitempty"`
	IsRequired        bool           `json:"isRequired,omitempty"`
	ValidationMessage string         `json:"validationMessage,omitempty"`
	HelpMessage       string         `json:"helpMessage,omitempty"`
	ShowLabel         *bool          `json:"showLabel,omitempty"`
	SaveResult        *bool          `json:"saveResult,omitempty"` // nil means not explicitly set
	InputAttributes   string         `json:"inputAttributes,omitempty"`
	LabelAttributes   string         `json:"labelAttributes,omitempty"`
	Properties        map[string]any `json:"properties,omitempty"`

	// SessionID is the editing-session key this field was last merged from.
	SessionID string `json:"sessionId,omitempty"`
}

func (f *Field) EntityID() int64    { return f.ID }
func (f *Field) SessionKey() string { return f.SessionID }

// Storable reports whether submissions populate a results column for f:
// the type is neither button nor freetext and saveResult is not explicitly
// false.
func (f *Field) Storable() bool {
	if f.Type == TypeButton || f.Type == TypeFreetext {
		return false
	}
	return f.SaveResult == nil || *f.SaveResult
}

// Action is a post-submission behavior attached to a form.
type Action struct {
	ID    int64 `json:"id,omitempty"`
	Form  *Form `json:"-"`
	Order int   `json:"order"`

	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type"`
	Properties  map[string]any `json:"properties,omitempty"`

	sessionKey string
}

func (a *Action) EntityID() int64    { return a.ID }
func (a *Action) SessionKey() string { return a.sessionKey }

// SetSessionKey records the editing-session key the action was merged from.
// Unlike a field's, it is not persisted.
func (a *Action) SetSessionKey(key string) { a.sessionKey = key }

// MappedFields returns the action's mappedFields sub-map, or nil.
func (a *Action) MappedFields() map[string]any {
	if a.Properties == nil {
		return nil
	}
	m, _ := a.Properties["mappedFields"].(map[string]any)
	return m
}
