package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Todo represents a single todo item. Title and Description are nil when
// the caller never supplied them.
type Todo struct {
	ID          string  `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Done        bool    `json:"isDone"`
}

// NewTodo creates a todo with a freshly generated id.
func NewTodo(title, description *string, done bool) Todo {
	return Todo{
		ID:          uuid.NewString(),
		Title:       cloneString(title),
		Description: cloneString(description),
		Done:        done,
	}
}

// Equal reports whether both todos carry the same id. Fields other than the
// id are not part of a todo's identity.
func (t Todo) Equal(other Todo) bool {
	return t.ID == other.ID
}

// Clone returns a copy that shares no memory with t.
func (t Todo) Clone() Todo {
	t.Title = cloneString(t.Title)
	t.Description = cloneString(t.Description)
	return t
}

// TitleOrEmpty returns the title, or "" when absent.
func (t Todo) TitleOrEmpty() string {
	if t.Title == nil {
		return ""
	}
	return *t.Title
}

// DescriptionOrEmpty returns the description, or "" when absent.
func (t Todo) DescriptionOrEmpty() string {
	if t.Description == nil {
		return ""
	}
	return *t.Description
}

// WithChanges builds the replacement value for an update. Nil arguments keep
// the current field value.
func (t Todo) WithChanges(title, description, done *string) Todo {
	next := t.Clone()
	if title != nil {
		next.Title = cloneString(title)
	}
	if description != nil {
		next.Description = cloneString(description)
	}
	if done != nil {
		next.Done = ParseDone(*done)
	}
	return next
}

// ParseDone interprets s as a boolean flag. Only a case-insensitive "true"
// yields true; anything else, including malformed input, yields false.
func ParseDone(s string) bool {
	return strings.EqualFold(s, "true")
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
