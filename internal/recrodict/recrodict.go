// Package recrodict provides the localized strings of the RecroGrid UI.
//
// Dictionaries are fetched per scope and language and cached for a minute.
package recrodict

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/recrovit/rgfclient/internal/apiservice"
	"golang.org/x/sync/errgroup"
)

// Scopes loaded by Initialize.
const (
	ScopeLanguage = "RGF.Language"
	ScopeUI       = "RGF.UI"
)

// NotInitialized is returned by UIString before Initialize succeeded.
const NotInitialized = "RecroDict has not been initialized"

const cacheTTL = 60 * time.Second

// API fetches dictionaries from the server.
type API interface {
	Dictionary(ctx context.Context, scope, language string, authClient bool) *apiservice.Response[map[string]string]
}

// Dict is a dictionary with case-insensitive keys.
type Dict struct {
	items map[string]item
}

type item struct {
	key, value string
}

// NewDict builds a dictionary from m.
func NewDict(m map[string]string) *Dict {
	d := &Dict{items: make(map[string]item, len(m))}
	for k, v := range m {
		d.items[strings.ToLower(k)] = item{k, v}
	}
	return d
}

// Get returns the value of key.
func (d *Dict) Get(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	it, ok := d.items[strings.ToLower(key)]
	return it.value, ok
}

// Item returns the value of key, or def when absent.
func (d *Dict) Item(key, def string) string {
	if v, ok := d.Get(key); ok {
		return v
	}
	return def
}

// Has reports whether key is present.
func (d *Dict) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.items)
}

// All iterates over the entries ordered by key.
func (d *Dict) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if d == nil {
			return
		}
		keys := make([]string, 0, len(d.items))
		for k := range d.items {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			it := d.items[k]
			if !yield(it.key, it.value) {
				return
			}
		}
	}
}

// Service is the localization dictionary.
type Service struct {
	api             API
	logger          *slog.Logger
	defaultLanguage string
	cache           *expirable.LRU[string, *Dict]

	mu          sync.RWMutex
	languages   *Dict
	ui          *Dict
	uiLanguage  string
	initialized bool
}

// New returns a dictionary service. defaultLanguage is lower-cased; empty
// means "eng". A nil logger means slog.Default().
func New(api API, defaultLanguage string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	lang := strings.ToLower(defaultLanguage)
	if lang == "" {
		lang = "eng"
	}
	return &Service{
		api:             api,
		logger:          logger,
		defaultLanguage: lang,
		cache:           expirable.NewLRU[string, *Dict](0, nil, cacheTTL),
		languages:       NewDict(map[string]string{lang: lang}),
		ui:              NewDict(nil),
	}
}

// DefaultLanguage returns the language used when none is given.
func (s *Service) DefaultLanguage() string {
	return s.defaultLanguage
}

// Languages returns the languages known to the server, keyed by code.
func (s *Service) Languages() *Dict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.languages
}

// Language returns the language of the loaded UI strings.
func (s *Service) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uiLanguage
}

// IsInitialized reports whether Initialize succeeded at least once.
func (s *Service) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Initialize loads the language list and the UI strings in language. Empty
// means the default language. Nothing is fetched when the language is
// already loaded. If either scope fails the call fails, the previous strings
// stay in place and the next call fetches again.
func (s *Service) Initialize(ctx context.Context, language string) error {
	if language == "" {
		language = s.defaultLanguage
	}
	s.mu.RLock()
	done := s.initialized && s.uiLanguage == language
	s.mu.RUnlock()
	if done {
		return nil
	}

	var languages, ui *Dict
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		languages, err = s.fetch(ctx, ScopeLanguage, language, false)
		return err
	})
	eg.Go(func() (err error) {
		ui, err = s.fetch(ctx, ScopeUI, language, false)
		return err
	})
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("failed to initialize dictionary %q: %w", language, err)
	}

	s.mu.Lock()
	s.languages = languages
	s.ui = ui
	s.uiLanguage = language
	s.initialized = true
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "RecroDict initialized", "language", language)
	return nil
}

// Dictionary returns one scope of the dictionary. Empty language means the
// default language. Failures yield an empty dictionary.
func (s *Service) Dictionary(ctx context.Context, scope, language string, authClient bool) *Dict {
	if language == "" {
		language = s.defaultLanguage
	}
	d, err := s.fetch(ctx, scope, language, authClient)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load dictionary", "scope", scope, "language", language, "err", err)
		return NewDict(nil)
	}
	return d
}

func (s *Service) fetch(ctx context.Context, scope, language string, authClient bool) (*Dict, error) {
	key := language + "/" + scope
	if d, ok := s.cache.Get(key); ok {
		return d, nil
	}
	resp := s.api.Dictionary(ctx, scope, language, authClient)
	if !resp.Success {
		return nil, fmt.Errorf("failed to load %s: %s", scope, resp.ErrorMessage)
	}
	d := NewDict(resp.Result)
	s.cache.Add(key, d)
	return d, nil
}

// UIString returns the localized UI string id.
func (s *Service) UIString(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return NotInitialized
	}
	return s.ui.Item(id, "RGF.UI."+id)
}
