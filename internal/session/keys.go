package session

import (
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TransientPrefix marks a placeholder key for an entity that has no
// permanent id yet.
const TransientPrefix = "new"

// KeyMinter mints placeholder keys for new session entries.
// Implemented by UUIDMinter (production) and FixedMinter (tests).
type KeyMinter interface {
	Generate() string
}

// UUIDMinter mints "new" followed by the hex digits of a UUIDv7, so keys
// sort by creation time and can never parse as an id.
//
// Thread-safety: UUIDMinter is stateless and safe for concurrent use.
type UUIDMinter struct{}

// Generate returns a new placeholder key. Panics if UUID generation fails.
func (UUIDMinter) Generate() string {
	return TransientPrefix + strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
}

// FixedMinter returns predetermined keys, then "new1", "new2", ... once they
// run out.
type FixedMinter struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewFixedMinter returns a minter yielding keys in order.
func NewFixedMinter(keys ...string) *FixedMinter {
	return &FixedMinter{keys: keys}
}

func (m *FixedMinter) Generate() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.idx++
	if m.idx <= len(m.keys) {
		return m.keys[m.idx-1]
	}
	return TransientPrefix + strconv.Itoa(m.idx)
}

// IsTransient reports whether v is a placeholder key rather than a permanent
// id.
func IsTransient(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, TransientPrefix)
}
