// Package grid orchestrates one RecroGrid entity view: paging over the page
// cache, the filter tree, the edit form and the toolbar commands.
//
// A Manager and the handlers it creates are owned by a single caller at a
// time; concurrent calls on the same Manager are not supported. Observable
// properties and dispatchers may be subscribed to from any goroutine.
package grid

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/recrovit/rgfclient/internal/apiservice"
	"github.com/recrovit/rgfclient/internal/events"
	"github.com/recrovit/rgfclient/internal/models"
)

var (
	// ErrRowOutOfRange is returned when an absolute row index is outside the
	// result set.
	ErrRowOutOfRange = errors.New("row index out of range")
	// ErrUnknownColumn is returned when a sort or layout refers to an alias
	// the entity does not have.
	ErrUnknownColumn = errors.New("unknown column")
)

// API is the subset of the server API a grid uses.
type API interface {
	RecroGrid(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[*models.GridResult]]
	Aggregation(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[*models.GridResult]]
	Filter(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[*models.FilterResult]]
	Form(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[*models.FormResult]]
	UpdateData(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[*models.FormResult]]
	DeleteData(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[*models.FormResult]]
	SaveGridSettings(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[*models.GridSetting]]
	DeleteGridSettings(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[models.EmptyResult]]
	ChartSettings(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[[]*models.ChartSettings]]
	SaveChartSettings(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[*models.ChartSettings]]
	DeleteChartSettings(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[models.EmptyResult]]
	SaveFilterSettings(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[*models.FilterSetting]]
	DeleteFilterSettings(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[models.EmptyResult]]
	CustomFunction(ctx context.Context, req *models.GridRequest) *apiservice.Response[models.Result[*models.CustomFunctionResult]]
	TextResource(ctx context.Context, name string, query url.Values) *apiservice.Response[string]
	About(ctx context.Context) *apiservice.Response[string]
	VersionCompatibility(ctx context.Context) *apiservice.Response[models.Result[map[string]string]]
}

// ProgressTracker receives progress reports of one custom function call.
type ProgressTracker interface {
	Start(ctx context.Context) (string, error)
	Close() error
}

// ProgressFactory opens a tracker calling fn for every report.
type ProgressFactory func(fn func(models.ProgressArgs)) ProgressTracker

// Deps are the application services shared by every grid.
type Deps struct {
	API           API
	Dict          events.UIStrings
	Notifications *events.NotificationService

	// UserLanguage returns the language resources are requested in.
	UserLanguage func() string

	// Versions is shared so that the server version is checked once per
	// application. Nil disables the check.
	Versions *VersionCheck

	// Progress is nil when progress tracking is unavailable.
	Progress ProgressFactory

	// ClientVersion is shown in the about dialog.
	ClientVersion string

	Logger *slog.Logger
}

// untranslated resolves UI strings to their dictionary ids.
type untranslated struct{}

func (untranslated) UIString(id string) string { return "RGF.UI." + id }

// VersionCheck remembers the server core version once it is known.
type VersionCheck struct {
	minimum *semver.Version

	// checking serializes the server round trip.
	checking sync.Mutex

	mu      sync.Mutex
	current *semver.Version
}

// NewVersionCheck returns a check warning about servers older than minimum.
func NewVersionCheck(minimum *semver.Version) *VersionCheck {
	return &VersionCheck{minimum: minimum}
}

// Current returns the server version, or nil when not checked yet.
func (v *VersionCheck) Current() *semver.Version {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Minimum returns the oldest supported server version.
func (v *VersionCheck) Minimum() *semver.Version {
	return v.minimum
}

func (v *VersionCheck) set(cur *semver.Version) {
	v.mu.Lock()
	v.current = cur
	v.mu.Unlock()
}
