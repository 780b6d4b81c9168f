package recrodict

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/recrovit/rgfclient/internal/apiservice"
)

type fakeAPI struct {
	mu    sync.Mutex
	data  map[string]map[string]string
	calls []string
}

func (f *fakeAPI) Dictionary(ctx context.Context, scope, language string, authClient bool) *apiservice.Response[map[string]string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := language + "/" + scope
	f.calls = append(f.calls, key)
	d, ok := f.data[key]
	if !ok {
		return &apiservice.Response[map[string]string]{ErrorMessage: "Not Found", StatusCode: 404}
	}
	return &apiservice.Response[map[string]string]{Success: true, StatusCode: 200, Result: d}
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newFake() *fakeAPI {
	return &fakeAPI{data: map[string]map[string]string{
		"eng/RGF.Language": {"eng": "English", "hun": "Magyar"},
		"eng/RGF.UI":       {"Refresh": "Refresh", "Processed": "Processed"},
		"hun/RGF.Language": {"eng": "Angol", "hun": "Magyar"},
		"hun/RGF.UI":       {"Refresh": "Frissítés"},
	}}
}

func TestDict(t *testing.T) {
	d := NewDict(map[string]string{"B": "2", "a": "1"})
	if v, ok := d.Get("b"); !ok || v != "2" {
		t.Errorf("Get(b) = %q, %t, want 2, true", v, ok)
	}
	if got := d.Item("missing", "def"); got != "def" {
		t.Errorf("Item(missing) = %q, want def", got)
	}
	var keys []string
	for k := range d.All() {
		keys = append(keys, k)
	}
	if diff := cmp.Diff([]string{"a", "B"}, keys); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}
	var nilDict *Dict
	if nilDict.Len() != 0 || nilDict.Has("x") {
		t.Error("nil Dict is not empty")
	}
}

func TestInitialize(t *testing.T) {
	api := newFake()
	s := New(api, "ENG", nil)
	if s.DefaultLanguage() != "eng" {
		t.Errorf("DefaultLanguage() = %q, want eng", s.DefaultLanguage())
	}
	if !s.Languages().Has("eng") {
		t.Error("Languages() does not hold the default language before Initialize")
	}
	if got := s.UIString("Refresh"); got != NotInitialized {
		t.Errorf("UIString() = %q, want %q", got, NotInitialized)
	}

	if err := s.Initialize(t.Context(), ""); err != nil {
		t.Fatal(err)
	}
	if !s.IsInitialized() || s.Language() != "eng" {
		t.Errorf("IsInitialized() = %t, Language() = %q", s.IsInitialized(), s.Language())
	}
	if got := s.UIString("refresh"); got != "Refresh" {
		t.Errorf("UIString(refresh) = %q, want Refresh", got)
	}
	if got := s.UIString("Missing"); got != "RGF.UI.Missing" {
		t.Errorf("UIString(Missing) = %q, want RGF.UI.Missing", got)
	}
	if s.Languages().Len() != 2 {
		t.Errorf("Languages().Len() = %d, want 2", s.Languages().Len())
	}

	// Same language: nothing fetched.
	n := api.callCount()
	if err := s.Initialize(t.Context(), "eng"); err != nil {
		t.Fatal(err)
	}
	if api.callCount() != n {
		t.Errorf("Initialize(eng) fetched again: %v", api.calls)
	}

	if err := s.Initialize(t.Context(), "hun"); err != nil {
		t.Fatal(err)
	}
	if got := s.UIString("Refresh"); got != "Frissítés" {
		t.Errorf("UIString(Refresh) = %q, want Frissítés", got)
	}
}

func TestInitializeFailure(t *testing.T) {
	api := newFake()
	s := New(api, "", nil)
	if err := s.Initialize(t.Context(), "deu"); err == nil {
		t.Fatal("Initialize(deu) succeeded, want error")
	}
	if s.IsInitialized() {
		t.Error("IsInitialized() = true after failure")
	}

	// Only one scope present: still a failure, and nothing is cached.
	api.mu.Lock()
	api.data["deu/RGF.Language"] = map[string]string{"deu": "Deutsch"}
	api.mu.Unlock()
	if err := s.Initialize(t.Context(), "deu"); err == nil {
		t.Fatal("Initialize(deu) with a missing UI scope succeeded, want error")
	}
	if got := s.UIString("Refresh"); got != NotInitialized {
		t.Errorf("UIString() = %q, want %q", got, NotInitialized)
	}

	api.mu.Lock()
	api.data["deu/RGF.UI"] = map[string]string{"Refresh": "Aktualisieren"}
	api.mu.Unlock()
	if err := s.Initialize(t.Context(), "deu"); err != nil {
		t.Fatalf("Initialize(deu) after the scopes appeared = %v", err)
	}
	if got := s.UIString("Refresh"); got != "Aktualisieren" {
		t.Errorf("UIString(Refresh) = %q, want Aktualisieren", got)
	}
}

func TestDictionaryCache(t *testing.T) {
	api := newFake()
	s := New(api, "eng", nil)
	d := s.Dictionary(t.Context(), "RGF.UI", "", true)
	if d.Item("processed", "") != "Processed" {
		t.Errorf("Dictionary() = %v", d.items)
	}
	s.Dictionary(t.Context(), "RGF.UI", "eng", true)
	if api.callCount() != 1 {
		t.Errorf("calls = %v, want one", api.calls)
	}
	if d := s.Dictionary(t.Context(), "RGF.Missing", "eng", true); d.Len() != 0 {
		t.Errorf("Dictionary(missing) = %v, want empty", d.items)
	}
	// Failures are not cached.
	s.Dictionary(t.Context(), "RGF.Missing", "eng", true)
	if api.callCount() != 3 {
		t.Errorf("calls = %v, want three", api.calls)
	}
}
