package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"todo-api/domain"
)

// Sink delivers a single change notification.
type Sink interface {
	Send(ctx context.Context, ch domain.Change) error
}

// Options configures a Publisher. Zero values fall back to defaults.
type Options struct {
	Workers        int
	Buffer         int
	SendTimeout    time.Duration
	HandoffTimeout time.Duration
}

const (
	defaultWorkers     = 4
	defaultBuffer      = 1024
	defaultSendTimeout = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.Buffer < 0 {
		o.Buffer = 0
	} else if o.Buffer == 0 {
		o.Buffer = defaultBuffer
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = defaultSendTimeout
	}
	if o.HandoffTimeout < 0 {
		o.HandoffTimeout = 0
	}
	return o
}

// Publisher hands changes to a fixed pool of workers that forward them to
// a Sink. Publish never blocks longer than the handoff timeout; changes that
// cannot be handed off are dropped and logged.
type Publisher struct {
	sink    Sink
	jobs    chan domain.Change
	handoff time.Duration
	timeout time.Duration
	log     *log.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewPublisher(sink Sink, opts Options, logger *log.Logger) *Publisher {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	opts = opts.withDefaults()
	p := &Publisher{
		sink:    sink,
		jobs:    make(chan domain.Change, opts.Buffer),
		handoff: opts.HandoffTimeout,
		timeout: opts.SendTimeout,
		log:     logger,
	}
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("change publisher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", opts.Workers, opts.Buffer, opts.SendTimeout, opts.HandoffTimeout)
	return p
}

func (p *Publisher) worker(id int) {
	defer p.wg.Done()
	for ch := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.sink.Send(ctx, ch)
		cancel()
		if err != nil {
			p.log.WithFields(log.Fields{
				"request_id": ch.RequestID,
				"change":     ch.Type,
				"todo_id":    ch.TodoID,
				"worker":     id,
			}).Errorf("publish change failed: %v", err)
		}
	}
}

// Publish queues ch for delivery and reports whether it was accepted.
func (p *Publisher) Publish(ctx context.Context, ch domain.Change) bool {
	if p == nil {
		return false
	}
	if ok, closed := trySendNonBlocking(p.jobs, ch); closed {
		return false
	} else if ok {
		return true
	}

	if p.handoff > 0 {
		timer := time.NewTimer(p.handoff)
		defer timer.Stop()
		ok, closed := sendWithTimer(p.jobs, ch, timer.C)
		if closed {
			return false
		}
		if ok {
			return true
		}
	}

	p.log.WithFields(log.Fields{
		"request_id": domain.RequestIDFromContext(ctx),
		"change":     ch.Type,
		"todo_id":    ch.TodoID,
	}).Warn("change publisher saturated, dropping change")
	return false
}

// Close stops accepting changes and waits until queued ones are delivered.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

func trySendNonBlocking(ch chan domain.Change, c domain.Change) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- c:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.Change, c domain.Change, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- c:
		return true, false
	case <-timer:
		return false, false
	}
}
