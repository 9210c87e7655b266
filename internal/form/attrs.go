package form

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AttributeError reports a property value that cannot be converted to the
// attribute's type.
type AttributeError struct {
	Attribute string
	Value     any
	Want      string
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("attribute %s: cannot use %v (%T) as %s", e.Attribute, e.Value, e.Value, e.Want)
}

// FieldAttributes lists the attributes Field.TrySet accepts, in a stable
// order.
var FieldAttributes = []string{
	"label", "alias", "type",
	"defaultValue", "isRequired", "validationMessage", "helpMessage",
	"showLabel", "saveResult", "inputAttributes", "labelAttributes", "properties",
}

// ActionAttributes lists the attributes Action.TrySet accepts.
var ActionAttributes = []string{"name", "description", "type", "properties"}

// TrySet assigns value to the named attribute. It returns false when the
// field has no such attribute; that is not an error.
func (f *Field) TrySet(name string, value any) (bool, error) {
	var err error
	switch name {
	case "label":
		f.Label, err = asString(name, value)
	case "alias":
		f.Alias, err = asString(name, value)
	case "type":
		f.Type, err = asString(name, value)
	case "defaultValue":
		f.DefaultValue, err = asString(name, value)
	case "isRequired":
		f.IsRequired, err = asBool(name, value)
	case "validationMessage":
		f.ValidationMessage, err = asString(name, value)
	case "helpMessage":
		f.HelpMessage, err = asString(name, value)
	case "showLabel":
		f.ShowLabel, err = asOptionalBool(name, value)
	case "saveResult":
		f.SaveResult, err = asOptionalBool(name, value)
	case "inputAttributes":
		f.InputAttributes, err = asString(name, value)
	case "labelAttributes":
		f.LabelAttributes, err = asString(name, value)
	case "properties":
		f.Properties, err = asMap(name, value)
	default:
		return false, nil
	}
	return true, err
}

// TrySet assigns value to the named attribute. It returns false when the
// action has no such attribute.
func (a *Action) TrySet(name string, value any) (bool, error) {
	var err error
	switch name {
	case "name":
		a.Name, err = asString(name, value)
	case "description":
		a.Description, err = asString(name, value)
	case "type":
		a.Type, err = asString(name, value)
	case "properties":
		a.Properties, err = asMap(name, value)
	default:
		return false, nil
	}
	return true, err
}

func asString(name string, v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case int, int64, float64, bool:
		return fmt.Sprint(x), nil
	}
	return "", &AttributeError{Attribute: name, Value: v, Want: "string"}
}

func asBool(name string, v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case int:
		return x != 0, nil
	case int64:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case json.Number:
		return x.String() != "0", nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "0", "false", "no", "off":
			return false, nil
		case "1", "true", "yes", "on":
			return true, nil
		}
	}
	return false, &AttributeError{Attribute: name, Value: v, Want: "bool"}
}

// asOptionalBool keeps nil as "unset" so that an explicit false can be told
// apart from an absent value.
func asOptionalBool(name string, v any) (*bool, error) {
	if v == nil {
		return nil, nil
	}
	b, err := asBool(name, v)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func asMap(name string, v any) (map[string]any, error) {
	switch v.(type) {
	case nil:
		return nil, nil
	case map[string]any, map[any]any:
		return NormalizeValue(v).(map[string]any), nil
	}
	return nil, &AttributeError{Attribute: name, Value: v, Want: "map"}
}

// NormalizeValue rewrites YAML-decoded maps with non-string keys, at any
// depth, to map[string]any so the value can be encoded as JSON. Keys are
// formatted with fmt.Sprint, so {5: new1} becomes {"5": "new1"}.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = NormalizeValue(val)
		}
		return m
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = NormalizeValue(val)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = NormalizeValue(val)
		}
		return out
	}
	return v
}

// ParseID converts a property or session-key value to an entity id. It
// returns 0 for anything that is not a positive integer.
func ParseID(v any) int64 {
	switch x := v.(type) {
	case int:
		return positive(int64(x))
	case int64:
		return positive(x)
	case float64:
		if x == float64(int64(x)) {
			return positive(int64(x))
		}
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return positive(n)
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return positive(n)
		}
	}
	return 0
}

func positive(n int64) int64 {
	if n > 0 {
		return n
	}
	return 0
}
