package domain

const (
	TodoCreated           = "todo-created"
	TodoUpdated           = "todo-updated"
	TodoDeleted           = "todo-deleted"
	TodosCleared          = "todos-cleared"
	CompletedTodosCleared = "completed-todos-cleared"
)

// Change describes a mutation that was applied to the todo collection.
type Change struct {
	ID        string `json:"id"`
	RequestID string `json:"requestId,omitempty"`
	Type      string `json:"type"`
	TodoID    string `json:"todoId,omitempty"`
	Todo      *Todo  `json:"todo,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
