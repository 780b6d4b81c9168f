// Package events dispatches UI events: toolbar commands, list and form
// notifications, toasts and user messages.
//
// Every event family uses the same Dispatcher keyed by a closed kind enum.
// For a dispatched kind, the kind handlers run first, then the generic
// handlers, then the default handlers unless one of the earlier handlers set
// PreventDefault. Handlers run one at a time in subscription order.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"time"
)

// Event carries the arguments of one dispatch and the flags handlers set.
type Event[A any] struct {
	Sender      any
	Args        A
	TriggeredAt time.Time

	// Handled reports to the dispatcher's caller that the event was acted on.
	Handled bool

	// PreventDefault skips the default handlers.
	PreventDefault bool
}

// NewEvent returns an event raised by sender.
func NewEvent[A any](sender any, args A) *Event[A] {
	return &Event[A]{Sender: sender, Args: args, TriggeredAt: time.Now()}
}

// Handler is a synchronous event handler.
type Handler[A any] func(ctx context.Context, e *Event[A])

// AsyncHandler is an event handler that may block and fail. The dispatcher
// waits for it before calling the next handler.
type AsyncHandler[A any] func(ctx context.Context, e *Event[A]) error

type entry[A any] struct {
	id       uint64
	receiver any
	sync     Handler[A]
	async    AsyncHandler[A]
}

func (e *entry[A]) call(ctx context.Context, ev *Event[A]) error {
	if e.sync != nil {
		e.sync(ctx, ev)
		return nil
	}
	return e.async(ctx, ev)
}

// Dispatcher routes events of kind K with arguments A. The zero value is
// ready to use.
type Dispatcher[K comparable, A any] struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	mu       sync.Mutex
	nextID   uint64
	handlers map[K][]entry[A]
	defaults map[K][]entry[A]
	generic  []entry[A]
}

// Subscribe registers fn for kinds on behalf of receiver.
func (d *Dispatcher[K, A]) Subscribe(receiver any, fn Handler[A], kinds ...K) *Subscription {
	return d.add(false, entry[A]{receiver: receiver, sync: fn}, kinds)
}

// SubscribeAsync registers an asynchronous fn for kinds.
func (d *Dispatcher[K, A]) SubscribeAsync(receiver any, fn AsyncHandler[A], kinds ...K) *Subscription {
	return d.add(false, entry[A]{receiver: receiver, async: fn}, kinds)
}

// SubscribeDefault registers the default behavior of kinds. It runs after
// every other handler unless the event is marked PreventDefault.
func (d *Dispatcher[K, A]) SubscribeDefault(receiver any, fn Handler[A], kinds ...K) *Subscription {
	return d.add(true, entry[A]{receiver: receiver, sync: fn}, kinds)
}

// SubscribeDefaultAsync is the asynchronous variant of SubscribeDefault.
func (d *Dispatcher[K, A]) SubscribeDefaultAsync(receiver any, fn AsyncHandler[A], kinds ...K) *Subscription {
	return d.add(true, entry[A]{receiver: receiver, async: fn}, kinds)
}

// SubscribeAll registers fn for every kind.
func (d *Dispatcher[K, A]) SubscribeAll(receiver any, fn Handler[A]) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.generic = append(d.generic, entry[A]{id: id, receiver: receiver, sync: fn})
	return d.subscription(id)
}

// SubscribeAllAsync registers an asynchronous fn for every kind.
func (d *Dispatcher[K, A]) SubscribeAllAsync(receiver any, fn AsyncHandler[A]) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.generic = append(d.generic, entry[A]{id: id, receiver: receiver, async: fn})
	return d.subscription(id)
}

func (d *Dispatcher[K, A]) add(isDefault bool, e entry[A], kinds []K) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = map[K][]entry[A]{}
		d.defaults = map[K][]entry[A]{}
	}
	d.nextID++
	e.id = d.nextID
	m := d.handlers
	if isDefault {
		m = d.defaults
	}
	for _, k := range kinds {
		m[k] = append(m[k], e)
	}
	return d.subscription(e.id)
}

func (d *Dispatcher[K, A]) subscription(id uint64) *Subscription {
	return &Subscription{cancel: func() {
		d.removeWhere(func(e entry[A]) bool { return e.id == id })
	}}
}

// Unsubscribe removes every handler registered by receiver. A nil or
// non-comparable receiver is ignored.
func (d *Dispatcher[K, A]) Unsubscribe(receiver any) {
	if !hasIdentity(receiver) {
		return
	}
	d.removeWhere(func(e entry[A]) bool { return hasIdentity(e.receiver) && e.receiver == receiver })
}

// hasIdentity reports whether v can be compared with == without panicking,
// looking through interface fields.
func hasIdentity(v any) bool {
	return v != nil && reflect.ValueOf(v).Comparable()
}

func (d *Dispatcher[K, A]) removeWhere(match func(entry[A]) bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, l := range d.handlers {
		d.handlers[k] = slices.DeleteFunc(l, match)
	}
	for k, l := range d.defaults {
		d.defaults[k] = slices.DeleteFunc(l, match)
	}
	d.generic = slices.DeleteFunc(d.generic, match)
}

// Len returns the number of registered handlers.
func (d *Dispatcher[K, A]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.generic)
	for _, l := range d.handlers {
		n += len(l)
	}
	for _, l := range d.defaults {
		n += len(l)
	}
	return n
}

// Dispatch delivers e to the handlers of kind and reports whether a handler
// marked it handled. Errors of asynchronous handlers are joined; they do not
// stop the dispatch.
func (d *Dispatcher[K, A]) Dispatch(ctx context.Context, kind K, e *Event[A]) (bool, error) {
	d.logger().DebugContext(ctx, "DispatchEvent", "kind", kind, "sender", fmt.Sprintf("%T", e.Sender))
	d.mu.Lock()
	handlers := slices.Clone(d.handlers[kind])
	generic := slices.Clone(d.generic)
	defaults := slices.Clone(d.defaults[kind])
	d.mu.Unlock()

	var errs []error
	for _, l := range [][]entry[A]{handlers, generic} {
		for i := range l {
			if err := l[i].call(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if !e.PreventDefault {
		for i := range defaults {
			if err := defaults[i].call(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return e.Handled, errors.Join(errs...)
}

// Raise dispatches a new event with args from sender.
func (d *Dispatcher[K, A]) Raise(ctx context.Context, kind K, sender any, args A) (bool, error) {
	return d.Dispatch(ctx, kind, NewEvent(sender, args))
}

func (d *Dispatcher[K, A]) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Subscription removes one registered handler.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the handler. Calling it again is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}
