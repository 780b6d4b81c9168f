// Package observable implements a typed value cell that notifies subscribers
// before and after its value changes.
//
// Mutations are serialized per property by a binary lock. The lock is
// re-entrant for the logical call chain that holds it: SetValue stores an
// owner token in the context it hands to change handlers, and a nested
// SetValue or ModifySilently called with that context reuses the lock instead
// of waiting on itself. Callers without the token wait until the lock is
// released or their context is done.
package observable

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrForeignUnlock is returned when a context that does not hold the
	// property lock tries to release it.
	ErrForeignUnlock = errors.New("observable: lock released by a context that does not own it")
	// ErrNoReceiver is returned when a bare listener has no identity that can
	// be used to remove it later.
	ErrNoReceiver = errors.New("observable: listener has no comparable identity; use OnBeforeChange/OnAfterChange with an explicit receiver")
)

// Change describes a value transition.
type Change[T any] struct {
	Orig T
	New  T
}

// Listener is a synchronous change subscriber with its own identity.
//
// Implementations are usually pointer types so that the same listener can be
// unsubscribed or deduplicated.
type Listener[T any] interface {
	ValueChanged(ctx context.Context, change Change[T])
}

// AsyncListener is a change subscriber that runs concurrently with the other
// asynchronous subscribers of the same phase.
type AsyncListener[T any] interface {
	ValueChangedAsync(ctx context.Context, change Change[T]) error
}

// Option configures a Property.
type Option[T any] func(*Property[T])

// WithEqual sets the equality used to skip no-op updates.
func WithEqual[T any](eq func(a, b T) bool) Option[T] {
	return func(p *Property[T]) {
		p.equal = eq
	}
}

type phase int

const (
	before phase = iota
	after
)

type handler[T any] struct {
	id       uint64
	receiver any
	listener any
	sync     func(context.Context, Change[T])
	async    func(context.Context, Change[T]) error
}

type lockToken struct {
	depth atomic.Int32
}

type lockKey struct {
	owner any
}

// Property is a mutable typed cell with before/after change notifications.
type Property[T any] struct {
	name  string
	equal func(a, b T) bool

	sem   chan struct{}
	owner atomic.Pointer[lockToken]

	valueMu sync.RWMutex
	value   T

	subsMu   sync.Mutex
	nextID   uint64
	handlers [2][]handler[T]
}

// NewProperty returns a property holding value.
//
// When T has an Equal(T) bool method or is a comparable non-interface type,
// setting an equal value is a no-op. Other types always notify.
func NewProperty[T any](value T, name string, opts ...Option[T]) *Property[T] {
	p := &Property[T]{
		name:  name,
		value: value,
		sem:   make(chan struct{}, 1),
		equal: defaultEqual[T](),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func defaultEqual[T any]() func(a, b T) bool {
	var zero T
	if _, ok := any(zero).(interface{ Equal(T) bool }); ok {
		return func(a, b T) bool {
			return any(a).(interface{ Equal(T) bool }).Equal(b)
		}
	}
	typ := reflect.TypeFor[T]()
	if typ.Kind() == reflect.Interface || !typ.Comparable() {
		return nil
	}
	return func(a, b T) bool {
		return any(a) == any(b)
	}
}

// Name returns the diagnostic name of the property.
func (p *Property[T]) Name() string {
	return p.name
}

// Value returns the current value without taking the mutation lock.
func (p *Property[T]) Value() T {
	p.valueMu.RLock()
	defer p.valueMu.RUnlock()
	return p.value
}

func (p *Property[T]) String() string {
	return fmt.Sprintf("%s=%v", p.name, p.Value())
}

// SetValue replaces the value and runs the change handlers.
//
// Before-change handlers all complete before the value is assigned and
// after-change handlers run once it is. An error from a before-change handler
// aborts the update.
func (p *Property[T]) SetValue(ctx context.Context, value T) (err error) {
	ctx, err = p.lock(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := p.unlock(ctx); err == nil {
			err = uerr
		}
	}()

	orig := p.Value()
	if p.equal != nil && p.equal(orig, value) {
		return nil
	}
	change := Change[T]{Orig: orig, New: value}
	if err := p.notify(ctx, before, change); err != nil {
		return fmt.Errorf("%s before change: %w", p.name, err)
	}
	p.store(value)
	if err := p.notify(ctx, after, change); err != nil {
		return fmt.Errorf("%s after change: %w", p.name, err)
	}
	return nil
}

// ModifySilently replaces the value without notifying anyone.
func (p *Property[T]) ModifySilently(ctx context.Context, value T) (err error) {
	ctx, err = p.lock(ctx)
	if err != nil {
		return err
	}
	p.store(value)
	return p.unlock(ctx)
}

func (p *Property[T]) store(value T) {
	p.valueMu.Lock()
	p.value = value
	p.valueMu.Unlock()
}

// lock acquires the mutation lock, or re-enters it when ctx carries the
// current owner token.
func (p *Property[T]) lock(ctx context.Context) (context.Context, error) {
	if tok, ok := ctx.Value(lockKey{p}).(*lockToken); ok && tok == p.owner.Load() {
		tok.depth.Add(1)
		return ctx, nil
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx, ctx.Err()
	}
	tok := &lockToken{}
	tok.depth.Store(1)
	p.owner.Store(tok)
	return context.WithValue(ctx, lockKey{p}, tok), nil
}

// unlock releases one level of the lock held by ctx.
func (p *Property[T]) unlock(ctx context.Context) error {
	tok, _ := ctx.Value(lockKey{p}).(*lockToken)
	if tok == nil || tok != p.owner.Load() {
		return ErrForeignUnlock
	}
	if tok.depth.Add(-1) > 0 {
		return nil
	}
	p.owner.Store(nil)
	<-p.sem
	return nil
}

func (p *Property[T]) notify(ctx context.Context, ph phase, change Change[T]) error {
	p.subsMu.Lock()
	hs := slices.Clone(p.handlers[ph])
	p.subsMu.Unlock()
	if len(hs) == 0 {
		return nil
	}
	for _, h := range hs {
		if h.sync != nil {
			h.sync(ctx, change)
		}
	}
	var g *errgroup.Group
	for _, h := range hs {
		if h.async == nil {
			continue
		}
		if g == nil {
			g, ctx = errgroup.WithContext(ctx)
		}
		fn := h.async
		g.Go(func() error {
			return fn(ctx, change)
		})
	}
	if g == nil {
		return nil
	}
	return g.Wait()
}

// OnBeforeChange subscribes fn on behalf of receiver; it runs inline before
// every change.
func (p *Property[T]) OnBeforeChange(receiver any, fn func(context.Context, Change[T])) *Subscription {
	return p.add(before, handler[T]{receiver: receiver, sync: fn})
}

// OnBeforeChangeAsync subscribes fn on behalf of receiver; it runs
// concurrently with the other asynchronous before-change handlers.
func (p *Property[T]) OnBeforeChangeAsync(receiver any, fn func(context.Context, Change[T]) error) *Subscription {
	return p.add(before, handler[T]{receiver: receiver, async: fn})
}

// OnAfterChange subscribes fn on behalf of receiver; it runs inline after
// every change.
func (p *Property[T]) OnAfterChange(receiver any, fn func(context.Context, Change[T])) *Subscription {
	return p.add(after, handler[T]{receiver: receiver, sync: fn})
}

// OnAfterChangeAsync subscribes fn on behalf of receiver; it runs
// concurrently with the other asynchronous after-change handlers.
func (p *Property[T]) OnAfterChangeAsync(receiver any, fn func(context.Context, Change[T]) error) *Subscription {
	return p.add(after, handler[T]{receiver: receiver, async: fn})
}

// SubscribeBeforeChange subscribes a listener that identifies itself.
// Subscribing the same listener again moves it to the end of the list.
func (p *Property[T]) SubscribeBeforeChange(l Listener[T]) (*Subscription, error) {
	if !hasIdentity(l) {
		return nil, ErrNoReceiver
	}
	return p.addListener(before, handler[T]{listener: l, receiver: l, sync: l.ValueChanged}), nil
}

// SubscribeAfterChange subscribes a listener that identifies itself.
func (p *Property[T]) SubscribeAfterChange(l Listener[T]) (*Subscription, error) {
	if !hasIdentity(l) {
		return nil, ErrNoReceiver
	}
	return p.addListener(after, handler[T]{listener: l, receiver: l, sync: l.ValueChanged}), nil
}

// SubscribeBeforeChangeAsync subscribes an asynchronous listener.
func (p *Property[T]) SubscribeBeforeChangeAsync(l AsyncListener[T]) (*Subscription, error) {
	if !hasIdentity(l) {
		return nil, ErrNoReceiver
	}
	return p.addListener(before, handler[T]{listener: l, receiver: l, async: l.ValueChangedAsync}), nil
}

// SubscribeAfterChangeAsync subscribes an asynchronous listener.
func (p *Property[T]) SubscribeAfterChangeAsync(l AsyncListener[T]) (*Subscription, error) {
	if !hasIdentity(l) {
		return nil, ErrNoReceiver
	}
	return p.addListener(after, handler[T]{listener: l, receiver: l, async: l.ValueChangedAsync}), nil
}

// UnsubscribeListener removes l from both phases.
func (p *Property[T]) UnsubscribeListener(l any) {
	if !hasIdentity(l) {
		return
	}
	p.removeWhere(func(h handler[T]) bool { return sameIdentity(h.listener, l) })
}

// UnsubscribeReceiver removes every handler registered for receiver.
func (p *Property[T]) UnsubscribeReceiver(receiver any) {
	if !hasIdentity(receiver) {
		return
	}
	p.removeWhere(func(h handler[T]) bool { return sameIdentity(h.receiver, receiver) })
}

// SubscriberCount returns the number of handlers in both phases.
func (p *Property[T]) SubscriberCount() int {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	return len(p.handlers[before]) + len(p.handlers[after])
}

// hasIdentity reports whether v can be compared with ==. Interface fields are
// checked by their dynamic values, so a struct holding a func in an any field
// has no identity.
func hasIdentity(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	if !rv.Comparable() {
		return false
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return !rv.IsNil()
	}
	return true
}

func sameIdentity(a, b any) bool {
	return hasIdentity(a) && hasIdentity(b) && a == b
}

func (p *Property[T]) add(ph phase, h handler[T]) *Subscription {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	p.nextID++
	h.id = p.nextID
	p.handlers[ph] = append(p.handlers[ph], h)
	return p.subscription(h.id)
}

func (p *Property[T]) addListener(ph phase, h handler[T]) *Subscription {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	p.handlers[ph] = slices.DeleteFunc(p.handlers[ph], func(e handler[T]) bool {
		return sameIdentity(e.listener, h.listener) && (e.sync == nil) == (h.sync == nil)
	})
	p.nextID++
	h.id = p.nextID
	p.handlers[ph] = append(p.handlers[ph], h)
	return p.subscription(h.id)
}

func (p *Property[T]) subscription(id uint64) *Subscription {
	return &Subscription{cancel: func() {
		p.removeWhere(func(h handler[T]) bool { return h.id == id })
	}}
}

func (p *Property[T]) removeWhere(match func(handler[T]) bool) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for ph := range p.handlers {
		p.handlers[ph] = slices.DeleteFunc(p.handlers[ph], match)
	}
}

// Subscription removes exactly one subscribed handler.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the handler. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Close implements io.Closer so subscriptions can be collected with other
// resources.
func (s *Subscription) Close() error {
	s.Unsubscribe()
	return nil
}
