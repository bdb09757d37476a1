package events

import (
	"context"
	"errors"

	"todo-api/domain"
)

// NopSink discards every change.
type NopSink struct{}

func (NopSink) Send(context.Context, domain.Change) error { return nil }

// MultiSink forwards each change to all of its sinks and joins their errors.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, ch domain.Change) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, ch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
