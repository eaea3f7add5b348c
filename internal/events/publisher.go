package events

import (
	"context"
	"sync"
	"time"
)

// Sink observes every published event, in order, before it reaches the client.
// Implementations must not block for long.
type Sink interface {
	Handle(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Handle calls f.
func (f SinkFunc) Handle(e Event) { f(e) }

// Publisher stamps events with the job id and a sequence number, fans them
// out to sinks and delivers them on a channel in FIFO order.
type Publisher struct {
	mu    sync.Mutex
	ctx   context.Context
	out   chan<- Event
	jobID string
	seq   int
	sinks []Sink
	now   func() time.Time
}

// NewPublisher delivers on out until ctx ends.
func NewPublisher(ctx context.Context, jobID string, out chan<- Event, sinks ...Sink) *Publisher {
	return &Publisher{ctx: ctx, out: out, jobID: jobID, sinks: sinks, now: time.Now}
}

// AddSink registers an extra observer for subsequent events.
func (p *Publisher) AddSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Publish delivers e. It blocks until the consumer takes the event and
// returns the context's cause if the consumer went away first.
func (p *Publisher) Publish(e Event) error {
	return p.PublishContext(p.ctx, e)
}

// PublishContext is Publish bounded by ctx instead of the publisher's own
// context. Sequence numbers stay shared with Publish.
func (p *Publisher) PublishContext(ctx context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}

	p.seq++
	e.Seq = p.seq
	e.JobID = p.jobID
	if e.Time.IsZero() {
		e.Time = p.now()
	}
	for _, s := range p.sinks {
		s.Handle(e)
	}

	select {
	case p.out <- e:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// JobID returns the id stamped on every event.
func (p *Publisher) JobID() string { return p.jobID }

// Count returns how many events were published.
func (p *Publisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}
