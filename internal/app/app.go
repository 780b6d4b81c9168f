// Package app owns the services shared by every grid of a RecroGrid client:
// the API client, the dictionary, the signed-in user and the notification
// scopes.
//
// An App replaces process-wide state. Create one with New, call Init once
// the caller is ready to talk to the server and Close when done.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/recrovit/rgfclient/internal/apiservice"
	"github.com/recrovit/rgfclient/internal/config"
	"github.com/recrovit/rgfclient/internal/events"
	"github.com/recrovit/rgfclient/internal/grid"
	"github.com/recrovit/rgfclient/internal/models"
	"github.com/recrovit/rgfclient/internal/recrodict"
	"github.com/recrovit/rgfclient/internal/recrosec"
)

// ErrClosed is returned by operations on a closed App.
var ErrClosed = errors.New("app is closed")

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger of the App and its services.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithHTTPClient sets the HTTP client used to reach the server.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) { a.httpClient = hc }
}

// WithVersion overrides the client version reported to the server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// App is the application context.
type App struct {
	API           *apiservice.Client
	Dict          *recrodict.Service
	Sec           *recrosec.Service
	Notifications *events.NotificationService

	logger     *slog.Logger
	httpClient *http.Client
	version    string
	versions   *grid.VersionCheck

	mu          sync.Mutex
	cfg         *config.Config
	initialized bool
	closed      bool
	watchers    map[int]context.CancelFunc
	nextWatcher int
	wg          sync.WaitGroup
}

// New validates cfg and builds the services. Nothing is fetched until Init.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		logger:   slog.Default(),
		version:  BuildVersion(),
		versions: grid.NewVersionCheck(config.MinimumCoreVersion),
		cfg:      cfg,
		watchers: map[int]context.CancelFunc{},
	}
	for _, opt := range opts {
		opt(a)
	}
	apiOpts := []apiservice.Option{apiservice.WithLogger(a.logger)}
	if a.httpClient != nil {
		apiOpts = append(apiOpts, apiservice.WithHTTPClient(a.httpClient))
	}
	a.API = apiservice.New(&cfg.API, apiOpts...)
	a.API.SetClientVersion(models.ClientVersionHeader, a.version)
	a.Dict = recrodict.New(a.API, cfg.RecroDict.DefaultLanguage, a.logger)
	a.Sec = recrosec.New(a.API, a.Dict, cfg.RecroSec.RoleClaimType, a.logger)
	a.Notifications = events.NewNotificationService(a.logger)
	return a, nil
}

// Init signs in with the configured credentials and loads the dictionary
// in the user language. Calling it again after success does nothing.
func (a *App) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.initialized {
		return nil
	}
	if err := a.authenticate(ctx, &a.cfg.Auth); err != nil {
		return err
	}
	if err := a.Dict.Initialize(ctx, a.Sec.UserLanguage()); err != nil {
		return err
	}
	a.initialized = true
	a.logger.InfoContext(ctx, "RGF Client initialized", "server", a.API.BaseAddress(), "version", a.version, "language", a.Dict.Language())
	return nil
}

// authenticate applies auth. A static token is decoded for the user claims;
// client credentials are refreshed by the API client itself.
func (a *App) authenticate(ctx context.Context, auth *config.Auth) error {
	switch {
	case auth.AccessToken != "":
		if err := a.Sec.SetAccessToken(ctx, auth.AccessToken); err != nil {
			return fmt.Errorf("failed to sign in: %w", err)
		}
	case auth.TokenURL != "":
		a.API.SetTokenSource(apiservice.TokenSource(context.WithoutCancel(ctx), auth))
	default:
		if err := a.Sec.SetAccessToken(ctx, ""); err != nil {
			return fmt.Errorf("failed to sign out: %w", err)
		}
	}
	return nil
}

// Initialized reports whether Init succeeded.
func (a *App) Initialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// Version returns the client version sent to the server.
func (a *App) Version() string {
	return a.version
}

// ClientVersions returns the version headers sent with every request.
func (a *App) ClientVersions() map[string]string {
	return a.API.ClientVersions()
}

// Config returns the configuration in use.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// ServerVersion returns the server core version once a grid checked it.
func (a *App) ServerVersion() string {
	if v := a.versions.Current(); v != nil {
		return v.String()
	}
	return ""
}

// NewManager returns a grid manager bound to session. A nil session starts
// a new one.
func (a *App) NewManager(session *models.SessionParams) *grid.Manager {
	return grid.NewManager(grid.Deps{
		API:           a.API,
		Dict:          a.Dict,
		Notifications: a.Notifications,
		UserLanguage:  a.Sec.UserLanguage,
		Versions:      a.versions,
		Progress:      a.progress,
		ClientVersion: a.version,
		Logger:        a.logger,
	}, session)
}

func (a *App) progress(fn func(models.ProgressArgs)) grid.ProgressTracker {
	return a.API.NewProgressClient(fn)
}

// Watch reloads the configuration file at path until ctx is done or the App
// is closed. Only the credentials are applied to the running App; other
// changes are logged and take effect on the next start.
func (a *App) Watch(ctx context.Context, path string) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	id := a.nextWatcher
	a.nextWatcher++
	a.watchers[id] = cancel
	a.wg.Add(1)
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.watchers, id)
		a.mu.Unlock()
		cancel()
		a.wg.Done()
	}()
	err := config.Watch(ctx, path, func(cfg *config.Config) {
		a.reload(ctx, cfg)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) reload(ctx context.Context, cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	old := a.cfg
	a.cfg = cfg
	if old.API.BaseAddress != cfg.API.BaseAddress || old.RecroDict.DefaultLanguage != cfg.RecroDict.DefaultLanguage {
		a.logger.WarnContext(ctx, "Config change needs a restart", "baseAddress", cfg.API.BaseAddress, "defaultLanguage", cfg.RecroDict.DefaultLanguage)
	}
	if old.Auth.AccessToken == cfg.Auth.AccessToken && old.Auth.TokenURL == cfg.Auth.TokenURL &&
		old.Auth.ClientID == cfg.Auth.ClientID && old.Auth.ClientSecret == cfg.Auth.ClientSecret {
		return
	}
	if err := a.authenticate(ctx, &cfg.Auth); err != nil {
		a.logger.ErrorContext(ctx, "Failed to apply new credentials", "err", err)
		return
	}
	a.logger.InfoContext(ctx, "Credentials reloaded", "authenticated", a.Sec.IsAuthenticated(), "user", a.Sec.UserName())
}

// Close stops the watchers and releases the notification scopes. It is
// safe to call more than once.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	for _, cancel := range a.watchers {
		cancel()
	}
	a.mu.Unlock()
	a.wg.Wait()
	a.Notifications.Close()
	return nil
}

// BuildVersion returns the module version of the running binary, or "dev"
// for local builds.
func BuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
