package session

// queue is a FIFO of pending utterance jobs. It is owned by the session loop.
type queue[T any] struct {
	items []T
}

func (q *queue[T]) push(item T) {
	q.items = append(q.items, item)
}

// pop removes and returns the front element; ok is false when empty.
func (q *queue[T]) pop() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

func (q *queue[T]) len() int { return len(q.items) }

func (q *queue[T]) reset() { q.items = nil }
