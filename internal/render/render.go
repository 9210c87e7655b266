// Package render produces the cached presentation of a form.
package render

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/roach88/formforge/internal/form"
)

// Renderer converts a form into its cached representation.
type Renderer interface {
	Name() string
	ContentType() string
	Render(ctx context.Context, f *form.Form) ([]byte, error)
}

//go:embed form.html.tmpl
var formTemplate string

// HTMLRenderer renders a form as an HTML fragment. Free-text content is
// user-authored markup and is sanitized before it is embedded.
type HTMLRenderer struct {
	tmpl   *template.Template
	policy *bluemonday.Policy
}

var (
	parseOnce sync.Once
	parsed    *template.Template
	parseErr  error
)

// NewHTMLRenderer returns the default HTML renderer.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	parseOnce.Do(func() {
		parsed, parseErr = template.New("form").Parse(formTemplate)
	})
	if parseErr != nil {
		return nil, fmt.Errorf("parse form template: %w", parseErr)
	}
	return &HTMLRenderer{tmpl: parsed, policy: bluemonday.UGCPolicy()}, nil
}

// MustHTMLRenderer is NewHTMLRenderer for the embedded template, which is
// known to parse.
func MustHTMLRenderer() *HTMLRenderer {
	r, err := NewHTMLRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

func (r *HTMLRenderer) Name() string        { return "html" }
func (r *HTMLRenderer) ContentType() string { return "text/html; charset=utf-8" }

func (r *HTMLRenderer) Render(ctx context.Context, f *form.Form) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	view := formView{ID: f.ID, Name: f.Name, Alias: f.Alias}
	if f.Fields != nil {
		for _, fld := range f.Fields.All() {
			view.Fields = append(view.Fields, r.fieldView(f, fld))
		}
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render form %d: %w", f.ID, err)
	}
	return buf.Bytes(), nil
}

type formView struct {
	ID     int64
	Name   string
	Alias  string
	Fields []fieldView
}

type fieldView struct {
	ElementID string
	InputName string
	Type      string
	InputType string
	Label     string
	ShowLabel bool
	Required  bool
	Default   string
	Help      string
	Options   []option
	Content   template.HTML
}

type option struct {
	Label string
	Value string
}

func (r *HTMLRenderer) fieldView(f *form.Form, fld *form.Field) fieldView {
	v := fieldView{
		ElementID: "formforge_" + f.Alias + "_" + fld.Alias,
		InputName: "formforge[" + fld.Alias + "]",
		Type:      fld.Type,
		InputType: inputType(fld.Type),
		Label:     fld.Label,
		ShowLabel: fld.ShowLabel == nil || *fld.ShowLabel,
		Required:  fld.IsRequired,
		Default:   fld.DefaultValue,
		Help:      fld.HelpMessage,
		Options:   options(fld.Properties),
	}
	if fld.Type == form.TypeFreetext {
		text, _ := fld.Properties["text"].(string)
		// bluemonday output is safe to embed as-is.
		v.Content = template.HTML(r.policy.Sanitize(text)) //nolint:gosec
	}
	return v
}

func inputType(fieldType string) string {
	switch fieldType {
	case "email", "tel", "url", "number", "date", "hidden":
		return fieldType
	default:
		return "text"
	}
}

// options reads a choice list given either as plain strings or as
// {label, value} maps.
func options(props map[string]any) []option {
	list, _ := props["list"].([]any)
	var out []option
	for _, item := range list {
		switch x := item.(type) {
		case string:
			out = append(out, option{Label: x, Value: x})
		case map[string]any:
			label := fmt.Sprint(x["label"])
			value, ok := x["value"]
			if !ok {
				value = label
			}
			out = append(out, option{Label: label, Value: strings.TrimSpace(fmt.Sprint(value))})
		}
	}
	return out
}
