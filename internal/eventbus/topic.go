package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"cryptoRateWatch/internal/ports"
)

// Handler processes one event. Returning an error (or panicking) marks the delivery as failed
// without affecting delivery to the other subscribers.
type Handler[T any] func(ctx context.Context, event T) error

// DispatchMode selects how a topic invokes its subscribers.
type DispatchMode int

const (
	// DispatchSequential invokes subscribers one after another in registration order.
	DispatchSequential DispatchMode = iota
	// DispatchConcurrent invokes every subscriber in its own goroutine and waits for all of them.
	// There is no ordering between subscribers.
	DispatchConcurrent
)

// String returns the config name of the mode.
func (m DispatchMode) String() string {
	if m == DispatchConcurrent {
		return "concurrent"
	}
	return "sequential"
}

// ParseDispatchMode converts "sequential" or "concurrent" into a DispatchMode.
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch s {
	case "", "sequential":
		return DispatchSequential, nil
	case "concurrent":
		return DispatchConcurrent, nil
	default:
		return DispatchSequential, fmt.Errorf("unknown dispatch mode %q: %w", s, ports.ErrConfigurationError)
	}
}

// Options configures dispatch for a topic.
type Options struct {
	Mode           DispatchMode
	MaxConcurrency int // Concurrent mode only; <= 0 means one goroutine per subscriber
}

type subscription[T any] struct {
	name    string
	handler Handler[T]
}

// Topic is a typed publish/subscribe channel for a single event type.
type Topic[T any] struct {
	name string
	opts Options

	mu   sync.RWMutex
	subs []subscription[T]
}

// NewTopic creates an empty topic.
func NewTopic[T any](name string, opts Options) *Topic[T] {
	return &Topic[T]{name: name, opts: opts}
}

// Name returns the topic name.
func (t *Topic[T]) Name() string {
	return t.name
}

// Subscribe registers handler under name. Subscribers registered while a publish is in flight
// receive only later events.
func (t *Topic[T]) Subscribe(name string, handler Handler[T]) {
	if handler == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, subscription[T]{name: name, handler: handler})
}

// SubscriberCount returns the number of registered subscribers.
func (t *Topic[T]) SubscriberCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Publish delivers event to every subscriber and returns once all of them have finished.
// Publishing with no subscribers is a no-op. Subscriber faults are wrapped with
// ports.ErrDispatch and joined into the returned error after every subscriber ran.
func (t *Topic[T]) Publish(ctx context.Context, event T) error {
	t.mu.RLock()
	subs := make([]subscription[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	errs := make([]error, len(subs))
	if t.opts.Mode == DispatchConcurrent && len(subs) > 1 {
		var g errgroup.Group
		if t.opts.MaxConcurrency > 0 {
			g.SetLimit(t.opts.MaxConcurrency)
		}
		for i, sub := range subs {
			g.Go(func() error {
				errs[i] = t.deliver(ctx, sub, event)
				return nil
			})
		}
		_ = g.Wait() // errors are collected per subscriber above
	} else {
		for i, sub := range subs {
			errs[i] = t.deliver(ctx, sub, event)
		}
	}
	return errors.Join(errs...)
}

func (t *Topic[T]) deliver(ctx context.Context, sub subscription[T], event T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: subscriber %q panicked: %v: %w", t.name, sub.name, r, ports.ErrDispatch)
		}
	}()
	if herr := sub.handler(ctx, event); herr != nil {
		return fmt.Errorf("%s: subscriber %q: %w: %w", t.name, sub.name, ports.ErrDispatch, herr)
	}
	return nil
}
