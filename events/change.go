package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"todo-api/domain"
)

var lastTimestamp int64

// nextTimestamp returns a strictly increasing unix-nano timestamp.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

// NewChange builds a change of the given type correlated with the request
// carried by ctx. todo may be nil for collection-wide changes.
func NewChange(ctx context.Context, typ, todoID string, todo *domain.Todo) domain.Change {
	var snapshot *domain.Todo
	if todo != nil {
		c := todo.Clone()
		snapshot = &c
	}
	return domain.Change{
		ID:        uuid.NewString(),
		RequestID: domain.RequestIDFromContext(ctx),
		Type:      typ,
		TodoID:    todoID,
		Todo:      snapshot,
		Timestamp: nextTimestamp(),
	}
}
