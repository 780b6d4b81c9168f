package observable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type countListener struct {
	rec  *recorder
	name string
}

func (c *countListener) ValueChanged(_ context.Context, ch Change[int]) {
	c.rec.add("%s %d->%d", c.name, ch.Orig, ch.New)
}

type funcListener func(context.Context, Change[int])

func (f funcListener) ValueChanged(ctx context.Context, ch Change[int]) { f(ctx, ch) }

// boxListener is comparable by type but not always by value.
type boxListener struct {
	rec  *recorder
	data any
}

func (b boxListener) ValueChanged(_ context.Context, ch Change[int]) {
	b.rec.add("box %v %d->%d", b.data, ch.Orig, ch.New)
}

type point struct{ X, Y int }

type version struct{ major, minor int }

func (v version) Equal(o version) bool { return v.major == o.major }

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSetValue(t *testing.T) {
	t.Run("ordering", func(t *testing.T) {
		ctx := testContext(t)
		rec := &recorder{}
		p := NewProperty(1, "n")
		p.OnBeforeChange(rec, func(_ context.Context, ch Change[int]) {
			rec.add("before %d->%d value=%d", ch.Orig, ch.New, p.Value())
		})
		p.OnAfterChange(rec, func(_ context.Context, ch Change[int]) {
			rec.add("after %d->%d value=%d", ch.Orig, ch.New, p.Value())
		})
		var want []string
		for v := 2; v <= 5; v++ {
			if err := p.SetValue(ctx, v); err != nil {
				t.Fatal(err)
			}
			want = append(want,
				fmt.Sprintf("before %d->%d value=%d", v-1, v, v-1),
				fmt.Sprintf("after %d->%d value=%d", v-1, v, v))
		}
		if diff := cmp.Diff(want, rec.get()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("equal value is a no-op", func(t *testing.T) {
		ctx := testContext(t)
		rec := &recorder{}
		p := NewProperty(point{1, 2}, "pt")
		p.OnBeforeChange(rec, func(context.Context, Change[point]) { rec.add("before") })
		p.OnAfterChange(rec, func(context.Context, Change[point]) { rec.add("after") })
		if err := p.SetValue(ctx, point{1, 2}); err != nil {
			t.Fatal(err)
		}
		if got := rec.get(); len(got) != 0 {
			t.Errorf("handlers ran for equal value: %v", got)
		}
	})

	t.Run("Equal method", func(t *testing.T) {
		ctx := testContext(t)
		calls := 0
		p := NewProperty(version{1, 0}, "v")
		p.OnAfterChange(nil, func(context.Context, Change[version]) { calls++ })
		if err := p.SetValue(ctx, version{1, 5}); err != nil {
			t.Fatal(err)
		}
		if calls != 0 {
			t.Errorf("calls = %d after equal set, want 0", calls)
		}
		if err := p.SetValue(ctx, version{2, 0}); err != nil {
			t.Fatal(err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("slices always notify", func(t *testing.T) {
		ctx := testContext(t)
		calls := 0
		p := NewProperty([]int{1}, "s")
		p.OnAfterChange(nil, func(context.Context, Change[[]int]) { calls++ })
		for range 2 {
			if err := p.SetValue(ctx, []int{1}); err != nil {
				t.Fatal(err)
			}
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("WithEqual", func(t *testing.T) {
		ctx := testContext(t)
		calls := 0
		p := NewProperty([]int{1}, "s", WithEqual(func(a, b []int) bool { return cmp.Equal(a, b) }))
		p.OnAfterChange(nil, func(context.Context, Change[[]int]) { calls++ })
		if err := p.SetValue(ctx, []int{1}); err != nil {
			t.Fatal(err)
		}
		if calls != 0 {
			t.Errorf("calls = %d, want 0", calls)
		}
	})

	t.Run("before error aborts", func(t *testing.T) {
		ctx := testContext(t)
		errVeto := errors.New("veto")
		afterCalled := false
		p := NewProperty("a", "s")
		p.OnBeforeChangeAsync(nil, func(context.Context, Change[string]) error { return errVeto })
		p.OnAfterChange(nil, func(context.Context, Change[string]) { afterCalled = true })
		if err := p.SetValue(ctx, "b"); !errors.Is(err, errVeto) {
			t.Fatalf("SetValue() = %v, want %v", err, errVeto)
		}
		if got := p.Value(); got != "a" {
			t.Errorf("Value() = %q, want %q", got, "a")
		}
		if afterCalled {
			t.Error("after handler ran after veto")
		}
		// The lock must have been released.
		if err := p.SetValue(ctx, "c"); !errors.Is(err, errVeto) {
			t.Fatalf("second SetValue() = %v", err)
		}
	})

	t.Run("async handlers all complete", func(t *testing.T) {
		ctx := testContext(t)
		var mu sync.Mutex
		done := 0
		p := NewProperty(0, "n")
		for range 5 {
			p.OnAfterChangeAsync(nil, func(context.Context, Change[int]) error {
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				done++
				mu.Unlock()
				return nil
			})
		}
		if err := p.SetValue(ctx, 1); err != nil {
			t.Fatal(err)
		}
		mu.Lock()
		defer mu.Unlock()
		if done != 5 {
			t.Errorf("done = %d, want 5", done)
		}
	})

	t.Run("ModifySilently", func(t *testing.T) {
		ctx := testContext(t)
		called := false
		p := NewProperty(1, "n")
		p.OnBeforeChange(nil, func(context.Context, Change[int]) { called = true })
		if err := p.ModifySilently(ctx, 9); err != nil {
			t.Fatal(err)
		}
		if p.Value() != 9 || called {
			t.Errorf("Value() = %d called = %t, want 9 false", p.Value(), called)
		}
	})
}

func TestReentrancy(t *testing.T) {
	t.Run("sync after handler", func(t *testing.T) {
		ctx := testContext(t)
		p := NewProperty(0, "n")
		p.OnAfterChange(nil, func(ctx context.Context, ch Change[int]) {
			if ch.New == 1 {
				if err := p.SetValue(ctx, 2); err != nil {
					t.Errorf("nested SetValue() = %v", err)
				}
			}
		})
		if err := p.SetValue(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if got := p.Value(); got != 2 {
			t.Errorf("Value() = %d, want 2", got)
		}
	})

	t.Run("async before handler", func(t *testing.T) {
		ctx := testContext(t)
		p := NewProperty(0, "n")
		p.OnBeforeChangeAsync(nil, func(ctx context.Context, ch Change[int]) error {
			if ch.New == 1 {
				return p.ModifySilently(ctx, 5)
			}
			return nil
		})
		if err := p.SetValue(ctx, 1); err != nil {
			t.Fatal(err)
		}
		// The outer assignment happens after the before phase.
		if got := p.Value(); got != 1 {
			t.Errorf("Value() = %d, want 1", got)
		}
	})

	t.Run("outsider waits", func(t *testing.T) {
		ctx := testContext(t)
		p := NewProperty(0, "n")
		entered := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		p.OnAfterChangeAsync(nil, func(context.Context, Change[int]) error {
			once.Do(func() { close(entered) })
			<-release
			return nil
		})
		errc := make(chan error, 1)
		go func() { errc <- p.SetValue(ctx, 1) }()
		<-entered

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if err := p.SetValue(short, 3); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("outsider SetValue() = %v, want deadline exceeded", err)
		}
		close(release)
		if err := <-errc; err != nil {
			t.Fatal(err)
		}
		if err := p.SetValue(ctx, 3); err != nil {
			t.Fatal(err)
		}
		if got := p.Value(); got != 3 {
			t.Errorf("Value() = %d, want 3", got)
		}
	})

	t.Run("foreign unlock", func(t *testing.T) {
		p := NewProperty(0, "n")
		owned, err := p.lock(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if err := p.unlock(t.Context()); !errors.Is(err, ErrForeignUnlock) {
			t.Errorf("unlock(foreign) = %v, want %v", err, ErrForeignUnlock)
		}
		nested, err := p.lock(owned)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.unlock(nested); err != nil {
			t.Fatal(err)
		}
		// Still held after the nested release.
		if p.owner.Load() == nil {
			t.Fatal("nested unlock released the lock")
		}
		if err := p.unlock(owned); err != nil {
			t.Fatal(err)
		}
		if err := p.unlock(owned); !errors.Is(err, ErrForeignUnlock) {
			t.Errorf("double unlock = %v, want %v", err, ErrForeignUnlock)
		}
	})
}

func TestSubscriptions(t *testing.T) {
	t.Run("bare func rejected", func(t *testing.T) {
		p := NewProperty(0, "n")
		f := funcListener(func(context.Context, Change[int]) {})
		if _, err := p.SubscribeAfterChange(f); !errors.Is(err, ErrNoReceiver) {
			t.Errorf("SubscribeAfterChange(func) = %v, want %v", err, ErrNoReceiver)
		}
		if _, err := p.SubscribeBeforeChange(nil); !errors.Is(err, ErrNoReceiver) {
			t.Errorf("SubscribeBeforeChange(nil) = %v, want %v", err, ErrNoReceiver)
		}
		var l *countListener
		if _, err := p.SubscribeBeforeChange(l); !errors.Is(err, ErrNoReceiver) {
			t.Errorf("SubscribeBeforeChange(nil pointer) = %v, want %v", err, ErrNoReceiver)
		}
	})

	t.Run("listener holding a func rejected", func(t *testing.T) {
		p := NewProperty(0, "n")
		l := boxListener{rec: &recorder{}, data: func() {}}
		for range 2 {
			if _, err := p.SubscribeAfterChange(l); !errors.Is(err, ErrNoReceiver) {
				t.Errorf("SubscribeAfterChange(boxListener{func}) = %v, want %v", err, ErrNoReceiver)
			}
		}
		p.UnsubscribeListener(l)
		p.UnsubscribeReceiver(l)
		if got := p.SubscriberCount(); got != 0 {
			t.Errorf("SubscriberCount() = %d, want 0", got)
		}
	})

	t.Run("value listener dedupe", func(t *testing.T) {
		ctx := testContext(t)
		rec := &recorder{}
		p := NewProperty(0, "n")
		p.OnAfterChange(boxListener{rec: rec, data: func() {}}, func(context.Context, Change[int]) { rec.add("func receiver") })
		for range 2 {
			if _, err := p.SubscribeAfterChange(boxListener{rec: rec, data: 7}); err != nil {
				t.Fatal(err)
			}
		}
		p.UnsubscribeReceiver(boxListener{rec: rec, data: 8})
		if got := p.SubscriberCount(); got != 2 {
			t.Errorf("SubscriberCount() = %d, want 2", got)
		}
		if err := p.SetValue(ctx, 1); err != nil {
			t.Fatal(err)
		}
		want := []string{"func receiver", "box 7 0->1"}
		if diff := cmp.Diff(want, rec.get()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("listener dedupe and order", func(t *testing.T) {
		ctx := testContext(t)
		rec := &recorder{}
		a := &countListener{rec, "a"}
		b := &countListener{rec, "b"}
		p := NewProperty(0, "n")
		for _, l := range []*countListener{a, b, a} {
			if _, err := p.SubscribeAfterChange(l); err != nil {
				t.Fatal(err)
			}
		}
		if got := p.SubscriberCount(); got != 2 {
			t.Errorf("SubscriberCount() = %d, want 2", got)
		}
		if err := p.SetValue(ctx, 1); err != nil {
			t.Fatal(err)
		}
		want := []string{"b 0->1", "a 0->1"}
		if diff := cmp.Diff(want, rec.get()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		ctx := testContext(t)
		rec := &recorder{}
		p := NewProperty(0, "n")
		sub := p.OnAfterChange(rec, func(context.Context, Change[int]) { rec.add("x") })
		sub.Unsubscribe()
		sub.Unsubscribe()
		if err := p.SetValue(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if got := rec.get(); len(got) != 0 {
			t.Errorf("unsubscribed handler ran: %v", got)
		}
	})

	t.Run("UnsubscribeReceiver", func(t *testing.T) {
		ctx := testContext(t)
		rec := &recorder{}
		owner := &struct{ name string }{"owner"}
		other := &struct{ name string }{"other"}
		p := NewProperty(0, "n")
		p.OnBeforeChange(owner, func(context.Context, Change[int]) { rec.add("owner before") })
		p.OnAfterChangeAsync(owner, func(context.Context, Change[int]) error { rec.add("owner after"); return nil })
		p.OnAfterChange(other, func(context.Context, Change[int]) { rec.add("other after") })
		p.UnsubscribeReceiver(owner)
		if err := p.SetValue(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"other after"}, rec.get()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("UnsubscribeListener", func(t *testing.T) {
		ctx := testContext(t)
		rec := &recorder{}
		a := &countListener{rec, "a"}
		p := NewProperty(0, "n")
		if _, err := p.SubscribeBeforeChange(a); err != nil {
			t.Fatal(err)
		}
		p.UnsubscribeListener(a)
		if err := p.SetValue(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if got := rec.get(); len(got) != 0 {
			t.Errorf("removed listener ran: %v", got)
		}
	})
}
