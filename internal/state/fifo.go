package state

// boundedQueue keeps the last cap items; the oldest is dropped on overflow.
type boundedQueue[T comparable] struct {
	items []T
	cap   int
}

func newBoundedQueue[T comparable](capacity int) *boundedQueue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &boundedQueue[T]{items: make([]T, 0, capacity), cap: capacity}
}

func (q *boundedQueue[T]) push(v T) {
	if len(q.items) == q.cap {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
	}
	q.items = append(q.items, v)
}

func (q *boundedQueue[T]) index(v T) int {
	for i, it := range q.items {
		if it == v {
			return i
		}
	}
	return -1
}

func (q *boundedQueue[T]) snapshot() []T {
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}

func (q *boundedQueue[T]) clear() { q.items = q.items[:0] }

// nameIndex maps display names to user ids, evicting in first-insertion order.
// Overwriting an existing name keeps its position.
type nameIndex struct {
	order []string
	ids   map[string]string
	cap   int
}

func newNameIndex(capacity int) *nameIndex {
	if capacity <= 0 {
		capacity = 1
	}
	return &nameIndex{ids: make(map[string]string, capacity), cap: capacity}
}

func (n *nameIndex) put(name, id string) {
	if _, ok := n.ids[name]; ok {
		n.ids[name] = id
		return
	}
	if len(n.order) >= n.cap {
		oldest := n.order[0]
		n.order = n.order[1:]
		delete(n.ids, oldest)
	}
	n.order = append(n.order, name)
	n.ids[name] = id
}

func (n *nameIndex) get(name string) (string, bool) {
	id, ok := n.ids[name]
	return id, ok
}

func (n *nameIndex) len() int { return len(n.order) }
