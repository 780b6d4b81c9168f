package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/recrovit/rgfclient/internal/models"
)

type receiver struct{ name string }

func TestDispatchOrder(t *testing.T) {
	var d ToolbarDispatcher
	var got []string
	r := &receiver{"grid"}
	d.SubscribeDefault(r, func(ctx context.Context, e *Event[ToolbarArgs]) {
		got = append(got, "default")
	}, ToolbarRefresh)
	d.SubscribeAll(r, func(ctx context.Context, e *Event[ToolbarArgs]) {
		got = append(got, "generic")
	})
	d.Subscribe(r, func(ctx context.Context, e *Event[ToolbarArgs]) {
		got = append(got, "kind")
	}, ToolbarRefresh, ToolbarAdd)
	d.SubscribeAsync(r, func(ctx context.Context, e *Event[ToolbarArgs]) error {
		got = append(got, "async")
		e.Handled = true
		return nil
	}, ToolbarRefresh)

	handled, err := d.Raise(t.Context(), ToolbarRefresh, r, ToolbarArgs{Action: ToolbarRefresh})
	if err != nil {
		t.Fatal(err)
	}
	if !handled {
		t.Error("Raise() = false, want true")
	}
	if diff := cmp.Diff([]string{"kind", "async", "generic", "default"}, got); diff != "" {
		t.Errorf("handler order (-want +got):\n%s", diff)
	}

	got = nil
	handled, _ = d.Raise(t.Context(), ToolbarAdd, r, ToolbarArgs{Action: ToolbarAdd})
	if handled {
		t.Error("Raise(Add) = true, want false")
	}
	if diff := cmp.Diff([]string{"kind", "generic"}, got); diff != "" {
		t.Errorf("handler order (-want +got):\n%s", diff)
	}
}

func TestPreventDefault(t *testing.T) {
	var d ListDispatcher
	ran := false
	d.Subscribe(nil, func(ctx context.Context, e *Event[ListArgs]) {
		e.PreventDefault = true
	}, ListDeleteRow)
	d.SubscribeDefault(nil, func(ctx context.Context, e *Event[ListArgs]) {
		ran = true
	}, ListDeleteRow)
	if _, err := d.Raise(t.Context(), ListDeleteRow, nil, ListArgs{}); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("default handler ran after PreventDefault")
	}
}

func TestDispatchErrors(t *testing.T) {
	var d MenuDispatcher
	errA := errors.New("a")
	errB := errors.New("b")
	calls := 0
	d.SubscribeAsync(nil, func(ctx context.Context, e *Event[MenuArgs]) error {
		calls++
		return errA
	}, "x")
	d.SubscribeAllAsync(nil, func(ctx context.Context, e *Event[MenuArgs]) error {
		calls++
		return errB
	})
	_, err := d.Raise(t.Context(), "x", nil, MenuArgs{Command: "x"})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Raise() = %v, want both errors", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestUnsubscribe(t *testing.T) {
	var d ToolbarDispatcher
	a, b := &receiver{"a"}, &receiver{"b"}
	noop := func(ctx context.Context, e *Event[ToolbarArgs]) {}
	d.Subscribe(a, noop, ToolbarRefresh, ToolbarAdd)
	d.SubscribeAll(a, noop)
	d.SubscribeDefault(b, noop, ToolbarRefresh)
	sub := d.Subscribe(b, noop, ToolbarEdit)
	if got := d.Len(); got != 5 {
		t.Fatalf("Len() = %d, want 5", got)
	}
	d.Unsubscribe(a)
	if got := d.Len(); got != 2 {
		t.Errorf("Len() after Unsubscribe(a) = %d, want 2", got)
	}
	sub.Unsubscribe()
	sub.Unsubscribe()
	if got := d.Len(); got != 1 {
		t.Errorf("Len() after cancel = %d, want 1", got)
	}
	d.Unsubscribe(nil)
	d.Unsubscribe([]int{1})
	if got := d.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}

	type boxed struct{ v any }
	d.Subscribe(boxed{func() {}}, noop, ToolbarRead)
	d.Subscribe(boxed{1}, noop, ToolbarRead)
	d.Unsubscribe(boxed{func() {}})
	d.Unsubscribe(boxed{1})
	if got := d.Len(); got != 2 {
		t.Errorf("Len() after boxed Unsubscribe = %d, want 2", got)
	}
}

func TestMenuCommandToToolbarAction(t *testing.T) {
	tests := []struct {
		command string
		want    ToolbarAction
	}{
		{MenuColumnSettings, ToolbarColumnSettings},
		{MenuExportCsv, ToolbarExportCsv},
		{MenuEntityEditor, ToolbarEntityEditor},
		{"Custom.Command", ToolbarInvalid},
		{"", ToolbarInvalid},
	}
	for _, tt := range tests {
		if got := MenuCommandToToolbarAction(tt.command); got != tt.want {
			t.Errorf("MenuCommandToToolbarAction(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestForwardMenuToToolbar(t *testing.T) {
	var menu MenuDispatcher
	var toolbar ToolbarDispatcher
	var got []ToolbarAction
	toolbar.SubscribeAll(nil, func(ctx context.Context, e *Event[ToolbarArgs]) {
		got = append(got, e.Args.Action)
		e.Handled = true
	})
	ForwardMenuToToolbar(&menu, &toolbar, nil)
	handled, err := menu.Raise(t.Context(), MenuQuickWatch, nil, MenuArgs{Command: MenuQuickWatch})
	if err != nil || !handled {
		t.Errorf("Raise(QuickWatch) = %t, %v, want true, nil", handled, err)
	}
	handled, _ = menu.Raise(t.Context(), "Other", nil, MenuArgs{Command: "Other"})
	if handled {
		t.Error("Raise(Other) = true, want false")
	}
	if diff := cmp.Diff([]ToolbarAction{ToolbarQuickWatch}, got); diff != "" {
		t.Errorf("forwarded actions (-want +got):\n%s", diff)
	}
}

func TestToolbarActionString(t *testing.T) {
	for a := ToolbarInvalid; a <= ToolbarRgfAbout; a++ {
		if got := ParseToolbarAction(a.String()); got != a {
			t.Errorf("ParseToolbarAction(%q) = %v, want %v", a.String(), got, a)
		}
	}
	if got := ToolbarAction(99).String(); got != "Invalid" {
		t.Errorf("String() = %q, want Invalid", got)
	}
}

func TestNewListArgs(t *testing.T) {
	if _, ok := NewListArgs(ListAddRow, &models.GridResult{DataColumns: []string{"a"}}); ok {
		t.Error("NewListArgs(no rows) = true, want false")
	}
	g := &models.GridResult{
		EntityDesc:  &models.Entity{Properties: []*models.Property{{ID: 1, Alias: "a"}}},
		DataColumns: []string{"a"},
		Data:        [][]any{{"x"}},
	}
	args, ok := NewListArgs(ListAddRow, g)
	if !ok {
		t.Fatal("NewListArgs() = false, want true")
	}
	if got := args.Data.Value("a").String(); got != "x" {
		t.Errorf("Data[a] = %q, want x", got)
	}
	if len(args.Properties) != 1 {
		t.Errorf("Properties = %v, want 1", args.Properties)
	}
}

func TestToast(t *testing.T) {
	tests := []struct {
		typ  ToastType
		want time.Duration
	}{
		{ToastError, 0},
		{ToastWarning, 10 * time.Second},
		{ToastInfo, 5 * time.Second},
		{ToastSuccess, 5 * time.Second},
		{ToastDefault, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := NewToast("t", "b", tt.typ).Delay; got != tt.want {
			t.Errorf("NewToast(%v).Delay = %v, want %v", tt.typ, got, tt.want)
		}
	}

	orig := NewActionToast("Saving", "Product", "Save", "", ToastInfo)
	if orig.Body != "<div><strong>Save</strong></div>" {
		t.Errorf("Body = %q", orig.Body)
	}
	done := orig.RecreateAsSuccess("Saved")
	if !orig.IsRemoved() {
		t.Error("original toast not removed")
	}
	if done.ID == orig.ID || done.Title != "Product" || done.Body != orig.Body || done.Type != ToastSuccess || done.Status != "Saved" {
		t.Errorf("RecreateAsSuccess() = %+v", done)
	}
	if done.IsRemoved() {
		t.Error("recreated toast removed")
	}
	if !done.Remove().IsRemoved() {
		t.Error("Remove() did not remove")
	}
}

func TestActionTemplate(t *testing.T) {
	got := ActionTemplate("Delete", "row 3")
	want := "<div><strong>Delete:</strong>&#32;<span>row 3</span></div>"
	if got != want {
		t.Errorf("ActionTemplate() = %q, want %q", got, want)
	}
}

type uiStrings map[string]string

func (u uiStrings) UIString(id string) string {
	if s, ok := u[id]; ok {
		return s
	}
	return "RGF.UI." + id
}

func TestNewUserMessage(t *testing.T) {
	m := NewUserMessage(uiStrings{"Error": "Hiba"}, UserMessageError, "boom")
	want := &UserMessage{Category: UserMessageError, Origin: OriginGlobal, Message: "boom", Title: "Hiba"}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("NewUserMessage() mismatch (-want +got):\n%s", diff)
	}
	if got := NewUserMessage(uiStrings{}, UserMessageWarning, "").Title; got != "RGF.UI.Warning" {
		t.Errorf("Title = %q, want RGF.UI.Warning", got)
	}
}

func TestNotificationService(t *testing.T) {
	s := NewNotificationService(nil)
	toasts := s.Manager(ToastManagerScope)
	if s.Manager(ToastManagerScope) != toasts {
		t.Fatal("Manager() returned a new manager for the same scope")
	}
	core := s.Manager(CoreNotificationsScope)

	var gotToasts []string
	var gotMessages []string
	r := &receiver{"ui"}
	Subscribe(toasts, r, func(ctx context.Context, e *Event[*Toast]) {
		gotToasts = append(gotToasts, e.Args.Title)
	})
	SubscribeAsync(core, r, func(ctx context.Context, e *Event[*UserMessage]) error {
		gotMessages = append(gotMessages, e.Args.Message)
		return nil
	})

	ctx := t.Context()
	if err := Raise(ctx, toasts, nil, NewToast("hello", "", ToastInfo)); err != nil {
		t.Fatal(err)
	}
	// Different argument type on the same scope has no subscriber.
	if err := Raise(ctx, toasts, nil, &UserMessage{Message: "lost"}); err != nil {
		t.Fatal(err)
	}
	if err := Raise(ctx, core, nil, &UserMessage{Message: "kept"}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"hello"}, gotToasts); diff != "" {
		t.Errorf("toasts (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"kept"}, gotMessages); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}

	core.Unsubscribe(r)
	_ = Raise(ctx, core, nil, &UserMessage{Message: "after"})
	if len(gotMessages) != 1 {
		t.Errorf("messages after Unsubscribe = %v", gotMessages)
	}

	toasts.Close()
	if s.Scopes() != 1 {
		t.Errorf("Scopes() = %d, want 1", s.Scopes())
	}
	if s.Manager(ToastManagerScope) == toasts {
		t.Error("closed manager still registered")
	}
	s.Close()
	if s.Scopes() != 0 {
		t.Errorf("Scopes() after Close = %d, want 0", s.Scopes())
	}
}

func TestEmptyDispatcher(t *testing.T) {
	var d Dispatcher[int, string]
	if handled, err := d.Raise(t.Context(), 1, nil, "x"); handled || err != nil {
		t.Errorf("Raise() on empty dispatcher = %t, %v", handled, err)
	}
}
