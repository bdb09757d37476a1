package domain

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// TodoStore defines the storage operations the service relies on.
// Implementations signal "nothing happened" with false or an absent result
// and never return errors to the caller.
type TodoStore interface {
	GetAll(ctx context.Context) []Todo
	GetByID(ctx context.Context, id string) (Todo, bool)
	Insert(ctx context.Context, todo *Todo) bool
	Update(ctx context.Context, id string, title, description, done *string) bool
	DeleteByID(ctx context.Context, id string) bool
	DeleteAll(ctx context.Context)
}

// TodoService derives filtered views and batch operations from a TodoStore.
type TodoService struct {
	st     TodoStore
	logger *log.Logger
}

// NewTodoService wires the service to a store. A nil logger falls back to
// the logrus standard logger.
func NewTodoService(st TodoStore, logger *log.Logger) TodoService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return TodoService{st: st, logger: logger}
}

func (s TodoService) GetAllTodos(ctx context.Context) []Todo {
	return s.st.GetAll(ctx)
}

// GetPendingTodos returns the todos that are not done.
func (s TodoService) GetPendingTodos(ctx context.Context) []Todo {
	return filterTodos(s.GetAllTodos(ctx), false)
}

// GetCompletedTodos returns the todos that are done.
func (s TodoService) GetCompletedTodos(ctx context.Context) []Todo {
	return filterTodos(s.GetAllTodos(ctx), true)
}

func (s TodoService) GetTodoByID(ctx context.Context, id string) (Todo, bool) {
	return s.st.GetByID(ctx, id)
}

func (s TodoService) AddTodo(ctx context.Context, todo *Todo) bool {
	ok := s.st.Insert(ctx, todo)
	if !ok {
		s.entry(ctx).Debug("todo rejected by store")
	}
	return ok
}

func (s TodoService) UpdateTodo(ctx context.Context, id string, title, description, done *string) bool {
	return s.st.Update(ctx, id, title, description, done)
}

func (s TodoService) DeleteAllTodos(ctx context.Context) {
	s.st.DeleteAll(ctx)
}

func (s TodoService) DeleteTodoByID(ctx context.Context, id string) bool {
	return s.st.DeleteByID(ctx, id)
}

// DeleteCompletedTodos snapshots the completed todos and then deletes them
// one by one. The two phases are not atomic: a todo completed or inserted
// after the snapshot survives the call. It returns the ids the store actually
// removed.
func (s TodoService) DeleteCompletedTodos(ctx context.Context) []string {
	completed := s.GetCompletedTodos(ctx)
	removed := make([]string, 0, len(completed))
	for _, t := range completed {
		if s.st.DeleteByID(ctx, t.ID) {
			removed = append(removed, t.ID)
		}
	}
	s.entry(ctx).WithFields(log.Fields{"snapshot": len(completed), "removed": len(removed)}).Debug("deleted completed todos")
	return removed
}

func filterTodos(todos []Todo, done bool) []Todo {
	out := make([]Todo, 0, len(todos))
	for _, t := range todos {
		if t.Done == done {
			out = append(out, t)
		}
	}
	return out
}

func (s TodoService) entry(ctx context.Context) *log.Entry {
	return s.logger.WithField("request_id", RequestIDFromContext(ctx))
}
