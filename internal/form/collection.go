package form

import "encoding/json"

// Entity is implemented by *Field and *Action.
type Entity interface {
	EntityID() int64
	SessionKey() string
}

// Collection is an ordered set of entities addressable both by permanent id
// and by editing-session key. Entities without an id yet are still reachable
// by their session key, so any number of new entities can coexist.
type Collection[T Entity] struct {
	items     []T
	byID      map[int64]int
	bySession map[string]int
}

// NewCollection returns an empty collection.
func NewCollection[T Entity]() *Collection[T] {
	return &Collection[T]{
		byID:      make(map[int64]int),
		bySession: make(map[string]int),
	}
}

// Add appends e, indexing it by id (when non-zero) and session key (when
// non-empty). Adding an entity whose id or key is already present replaces
// the earlier index entry but keeps both items.
func (c *Collection[T]) Add(e T) {
	c.items = append(c.items, e)
	c.index(len(c.items)-1, e)
}

func (c *Collection[T]) index(i int, e T) {
	if id := e.EntityID(); id != 0 {
		c.byID[id] = i
	}
	if key := e.SessionKey(); key != "" {
		c.bySession[key] = i
	}
}

// Reindex rebuilds the lookup maps, e.g. after new entities were assigned
// ids by the store.
func (c *Collection[T]) Reindex() {
	c.byID = make(map[int64]int, len(c.items))
	c.bySession = make(map[string]int, len(c.items))
	for i, e := range c.items {
		c.index(i, e)
	}
}

// ByID looks an entity up by permanent id.
func (c *Collection[T]) ByID(id int64) (T, bool) {
	var zero T
	if c == nil || id == 0 {
		return zero, false
	}
	i, ok := c.byID[id]
	if !ok {
		return zero, false
	}
	return c.items[i], true
}

// BySessionKey looks an entity up by the session key it was merged from.
func (c *Collection[T]) BySessionKey(key string) (T, bool) {
	var zero T
	if c == nil || key == "" {
		return zero, false
	}
	i, ok := c.bySession[key]
	if !ok {
		return zero, false
	}
	return c.items[i], true
}

// All returns the entities in order. The slice must not be modified.
func (c *Collection[T]) All() []T {
	if c == nil {
		return nil
	}
	return c.items
}

// Len returns the number of entities.
func (c *Collection[T]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// IDs returns the non-zero ids in order.
func (c *Collection[T]) IDs() []int64 {
	ids := make([]int64, 0, c.Len())
	for _, e := range c.All() {
		if id := e.EntityID(); id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// MarshalJSON encodes the collection as an ordered array.
func (c *Collection[T]) MarshalJSON() ([]byte, error) {
	items := c.All()
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}
