// Package alias derives short, stable keys from human labels.
//
// Field aliases double as results-table column names, so they are derived
// once when a field is created and never re-derived on edit.
package alias

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxFieldLen is the maximum length of a field alias base.
	MaxFieldLen = 25
	// MaxFormLen is the maximum length of a form alias.
	MaxFormLen = 10
)

// Allocator hands out aliases that are unique within one set. Each result is
// added to the set, so repeated calls in one pass never collide.
type Allocator struct {
	taken map[string]struct{}
	order []string
}

// NewAllocator returns an allocator whose set starts with existing.
func NewAllocator(existing ...string) *Allocator {
	a := &Allocator{taken: make(map[string]struct{}, len(existing))}
	for _, e := range existing {
		a.Reserve(e)
	}
	return a
}

// Reserve adds alias to the set without deriving anything.
func (a *Allocator) Reserve(alias string) {
	if _, ok := a.taken[alias]; ok {
		return
	}
	a.taken[alias] = struct{}{}
	a.order = append(a.order, alias)
}

// Taken reports whether alias is already in the set.
func (a *Allocator) Taken(alias string) bool {
	_, ok := a.taken[alias]
	return ok
}

// Aliases returns the set in insertion order.
func (a *Allocator) Aliases() []string {
	return append([]string(nil), a.order...)
}

// Allocate derives the base alias of label and returns it if free, otherwise
// base followed by the smallest positive integer that makes it free.
func (a *Allocator) Allocate(label string) string {
	base := FieldBase(label)

	candidate := base
	for n := 1; a.Taken(candidate); n++ {
		candidate = base + strconv.Itoa(n)
	}

	a.Reserve(candidate)
	return candidate
}

// FieldBase normalizes label to lowercase alphanumerics and underscores,
// truncates it to MaxFieldLen and strips a trailing underscore.
func FieldBase(label string) string {
	s := truncate(Normalize(label, '_'), MaxFieldLen)
	return strings.TrimSuffix(s, "_")
}

// FormAlias derives a form alias: lowercase alphanumerics only, at most
// MaxFormLen characters. No uniqueness check is made.
func FormAlias(name string) string {
	return truncate(Normalize(name, 0), MaxFormLen)
}

var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize transliterates s to ASCII lowercase alphanumerics. Runs of other
// characters become a single sep, or are dropped when sep is 0. Leading
// separators are trimmed.
func Normalize(s string, sep rune) string {
	folded, _, err := transform.String(foldMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))

	pending := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteRune(sep)
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		if r == '_' && sep == '_' {
			pending = true
			continue
		}
		if sep != 0 && (unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)) {
			pending = true
		}
	}
	if pending && sep != 0 && b.Len() > 0 {
		b.WriteRune(sep)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
