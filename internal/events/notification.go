// Scoped notification managers routing events by argument type.

package events

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
)

// NotificationService owns one NotificationManager per scope.
type NotificationService struct {
	logger *slog.Logger

	mu       sync.Mutex
	managers map[string]*NotificationManager
}

// NewNotificationService returns an empty service. A nil logger uses
// slog.Default().
func NewNotificationService(logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{logger: logger, managers: map[string]*NotificationManager{}}
}

// Manager returns the manager of scope, creating it on first use.
func (s *NotificationService) Manager(scope string) *NotificationManager {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.managers[scope]
	if !ok {
		m = &NotificationManager{
			scope:     scope,
			service:   s,
			logger:    s.logger.With("scope", scope),
			observers: map[reflect.Type]any{},
		}
		s.managers[scope] = m
	}
	return m
}

// Scopes returns the number of live managers.
func (s *NotificationService) Scopes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.managers)
}

// RemoveManager forgets scope. Its subscribers are dropped.
func (s *NotificationService) RemoveManager(scope string) {
	s.mu.Lock()
	m := s.managers[scope]
	delete(s.managers, scope)
	s.mu.Unlock()
	if m != nil {
		m.clear()
	}
}

// Close removes every manager.
func (s *NotificationService) Close() {
	s.mu.Lock()
	ms := s.managers
	s.managers = map[string]*NotificationManager{}
	s.mu.Unlock()
	for _, m := range ms {
		m.clear()
	}
}

// NotificationManager delivers events of any argument type within a scope.
type NotificationManager struct {
	scope   string
	service *NotificationService
	logger  *slog.Logger

	mu        sync.Mutex
	observers map[reflect.Type]any
}

// Scope returns the name of the manager.
func (m *NotificationManager) Scope() string {
	return m.scope
}

// observer returns the dispatcher of argument type A.
func observer[A any](m *NotificationManager) *Dispatcher[struct{}, A] {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := reflect.TypeFor[A]()
	if d, ok := m.observers[t]; ok {
		return d.(*Dispatcher[struct{}, A])
	}
	d := &Dispatcher[struct{}, A]{Logger: m.logger}
	m.observers[t] = d
	return d
}

// Subscribe registers fn for events carrying A.
func Subscribe[A any](m *NotificationManager, receiver any, fn Handler[A]) *Subscription {
	return observer[A](m).SubscribeAll(receiver, fn)
}

// SubscribeAsync registers an asynchronous fn for events carrying A.
func SubscribeAsync[A any](m *NotificationManager, receiver any, fn AsyncHandler[A]) *Subscription {
	return observer[A](m).SubscribeAllAsync(receiver, fn)
}

// Raise delivers args to the subscribers of A.
func Raise[A any](ctx context.Context, m *NotificationManager, sender any, args A) error {
	_, err := observer[A](m).Raise(ctx, struct{}{}, sender, args)
	return err
}

// Unsubscribe removes every handler of receiver across argument types.
func (m *NotificationManager) Unsubscribe(receiver any) {
	m.mu.Lock()
	ds := make([]any, 0, len(m.observers))
	for _, d := range m.observers {
		ds = append(ds, d)
	}
	m.mu.Unlock()
	for _, d := range ds {
		d.(interface{ Unsubscribe(any) }).Unsubscribe(receiver)
	}
}

// Close removes the manager from its service.
func (m *NotificationManager) Close() {
	m.service.RemoveManager(m.scope)
}

func (m *NotificationManager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.observers)
}
