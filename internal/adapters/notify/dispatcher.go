package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"pressflow/internal/domain"
)

// Source is the queue side the dispatcher drains; the redis outbox
// implements it.
type Source interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*domain.Notification, error)
}

// Handler delivers a notification over one channel.
type Handler func(ctx context.Context, n *domain.Notification) error

// Dispatcher drains the notification outbox and fans each message out to
// its channels. Delivery is best-effort and at-least-once; a failing
// channel is retried a bounded number of times and then dropped with a
// log line, never blocking workflow transitions.
type Dispatcher struct {
	source   Source
	handlers map[domain.Channel]Handler
	ctx      context.Context
	cancel   context.CancelFunc
}

const maxAttempts = 3

func NewDispatcher(parent context.Context, source Source) *Dispatcher {
	ctx, cancel := context.WithCancel(parent)
	return &Dispatcher{
		source:   source,
		handlers: make(map[domain.Channel]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (d *Dispatcher) RegisterHandler(channel domain.Channel, handler Handler) error {
	if channel == "" {
		return errors.New("channel cannot be empty")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	d.handlers[channel] = handler
	return nil
}

// Run drains the outbox until the context is cancelled.
func (d *Dispatcher) Run() error {
	for {
		select {
		case <-d.ctx.Done():
			return d.ctx.Err()
		default:
			pollCtx, pollCancel := context.WithTimeout(d.ctx, 30*time.Second)
			n, err := d.source.Dequeue(pollCtx, 10*time.Second)
			pollCancel()

			if err != nil {
				if d.ctx.Err() != nil {
					return d.ctx.Err()
				}
				log.Printf("Failed to dequeue notification: %v", err)
				continue
			}
			if n == nil {
				continue
			}
			d.deliver(n)
		}
	}
}

func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Dispatcher) deliver(n *domain.Notification) {
	for _, channel := range n.Channels {
		handler, ok := d.handlers[channel]
		if !ok {
			log.Printf("No handler registered for channel %s, dropping %s notification for %s", channel, n.Kind, n.RecipientID)
			continue
		}
		var err error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			deliverCtx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
			err = handler(deliverCtx, n)
			cancel()
			if err == nil {
				break
			}
		}
		if err != nil {
			log.Printf("Dropping %s notification for %s on %s after %d attempts: %v", n.Kind, n.RecipientID, channel, maxAttempts, err)
		}
	}
}

// LogHandler is the fallback delivery channel: it just records the
// notification. The real email/SMS transports live with the external
// notification collaborator.
func LogHandler(_ context.Context, n *domain.Notification) error {
	log.Printf("[notify] %s -> %s: %s: %s", n.Kind, n.RecipientID, n.Title, n.Message)
	return nil
}
