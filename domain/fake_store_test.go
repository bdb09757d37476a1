package domain

import (
	"context"
	"sort"
)

type fakeStore struct {
	todos   map[string]Todo
	deletes []string

	// onDelete runs before each DeleteByID, letting tests interleave writes
	// between the snapshot and delete phases.
	onDelete func(id string)
}

func newFakeStore(todos ...Todo) *fakeStore {
	f := &fakeStore{todos: map[string]Todo{}}
	for _, t := range todos {
		f.todos[t.ID] = t
	}
	return f
}

func (f *fakeStore) GetAll(ctx context.Context) []Todo {
	out := make([]Todo, 0, len(f.todos))
	for _, t := range f.todos {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (Todo, bool) {
	t, ok := f.todos[id]
	return t.Clone(), ok
}

func (f *fakeStore) Insert(ctx context.Context, todo *Todo) bool {
	if todo == nil {
		return false
	}
	if _, exists := f.todos[todo.ID]; exists {
		return false
	}
	f.todos[todo.ID] = todo.Clone()
	return true
}

func (f *fakeStore) Update(ctx context.Context, id string, title, description, done *string) bool {
	t, ok := f.todos[id]
	if !ok {
		return false
	}
	f.todos[id] = t.WithChanges(title, description, done)
	return true
}

func (f *fakeStore) DeleteByID(ctx context.Context, id string) bool {
	if f.onDelete != nil {
		f.onDelete(id)
	}
	f.deletes = append(f.deletes, id)
	if _, ok := f.todos[id]; !ok {
		return false
	}
	delete(f.todos, id)
	return true
}

func (f *fakeStore) DeleteAll(ctx context.Context) {
	f.todos = map[string]Todo{}
}
