package storage

import (
	"context"
	"sync"

	"todo-api/domain"
)

// Memory keeps todos in process memory. A single RWMutex guards the map:
// reads share the lock, every mutation holds it exclusively, and each
// mutation performs its existence check inside the same critical section.
type Memory struct {
	mu    sync.RWMutex
	todos map[string]domain.Todo
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{todos: make(map[string]domain.Todo)}
}

// GetAll returns a snapshot of every stored todo in unspecified order.
func (m *Memory) GetAll(_ context.Context) []domain.Todo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Todo, 0, len(m.todos))
	for _, t := range m.todos {
		out = append(out, t.Clone())
	}
	return out
}

// GetByID returns a copy of the todo with the given id.
func (m *Memory) GetByID(_ context.Context, id string) (domain.Todo, bool) {
	if id == "" {
		return domain.Todo{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.todos[id]
	if !ok {
		return domain.Todo{}, false
	}
	return t.Clone(), true
}

// Insert stores a copy of todo unless its id is already present.
func (m *Memory) Insert(_ context.Context, todo *domain.Todo) bool {
	if todo == nil || todo.ID == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.todos[todo.ID]; exists {
		return false
	}
	m.todos[todo.ID] = todo.Clone()
	return true
}

// Update replaces the stored todo with a new value built from the supplied
// fields. Nil fields keep their current value.
func (m *Memory) Update(_ context.Context, id string, title, description, done *string) bool {
	if id == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.todos[id]
	if !ok {
		return false
	}
	m.todos[id] = current.WithChanges(title, description, done)
	return true
}

// DeleteByID removes the todo and reports whether it was present.
func (m *Memory) DeleteByID(_ context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.todos[id]; !ok {
		return false
	}
	delete(m.todos, id)
	return true
}

// DeleteAll empties the store.
func (m *Memory) DeleteAll(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.todos = make(map[string]domain.Todo)
}

// Len returns the number of stored todos.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.todos)
}
