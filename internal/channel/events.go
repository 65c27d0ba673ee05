package channel

import "sync"

// listenerSet is a registry of lifecycle listeners. Registration returns an
// unsubscribe func; emit snapshots the set so listeners may unsubscribe
// (or register) from within a callback.
type listenerSet[T any] struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(T)
}

func newListenerSet[T any]() *listenerSet[T] {
	return &listenerSet[T]{fns: make(map[int]func(T))}
}

func (l *listenerSet[T]) add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.fns[id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *listenerSet[T]) emit(v T) {
	l.mu.Lock()
	snapshot := make([]func(T), 0, len(l.fns))
	for _, fn := range l.fns {
		snapshot = append(snapshot, fn)
	}
	l.mu.Unlock()

	for _, fn := range snapshot {
		fn(v)
	}
}
