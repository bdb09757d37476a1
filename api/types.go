package api

import (
	"context"

	"todo-api/domain"
)

// Service is the todo service consumed by the handlers.
type Service interface {
	GetAllTodos(ctx context.Context) []domain.Todo
	GetPendingTodos(ctx context.Context) []domain.Todo
	GetCompletedTodos(ctx context.Context) []domain.Todo
	GetTodoByID(ctx context.Context, id string) (domain.Todo, bool)
	AddTodo(ctx context.Context, todo *domain.Todo) bool
	UpdateTodo(ctx context.Context, id string, title, description, done *string) bool
	DeleteAllTodos(ctx context.Context)
	DeleteCompletedTodos(ctx context.Context) []string
	DeleteTodoByID(ctx context.Context, id string) bool
}

// Publisher accepts change notifications for asynchronous delivery.
type Publisher interface {
	Publish(ctx context.Context, ch domain.Change) bool
}

// Notifier lets stream handlers wait for collection changes.
type Notifier interface {
	Subscribe() chan struct{}
	Unsubscribe(ch chan struct{})
}
