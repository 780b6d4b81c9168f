package grid

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/recrovit/rgfclient/internal/apiservice"
	"github.com/recrovit/rgfclient/internal/events"
	"github.com/recrovit/rgfclient/internal/models"
	"github.com/recrovit/rgfclient/internal/observable"
)

const (
	incompatibleTitle   = "Incompatible RGF version detected"
	incompatibleMessage = "The RGF Server Core is running version %s, but the current RGF Client requires at least version %s.<br/> Please update the RGF Server Core to avoid unexpected behavior."
)

// Manager drives one grid session: it owns the list handler, builds the
// requests of the session and turns server failures into user messages.
type Manager struct {
	api           API
	dict          events.UIStrings
	lang          func() string
	versions      *VersionCheck
	progress      ProgressFactory
	clientVersion string
	logger        *slog.Logger

	session *models.SessionParams

	// Notifications delivers *events.UserMessage events.
	Notifications *events.NotificationManager
	// Toasts delivers *events.Toast events.
	Toasts *events.NotificationManager

	Toolbar      events.ToolbarDispatcher
	Menu         events.MenuDispatcher
	EntityEvents events.EntityDispatcher
	requestHooks events.Dispatcher[struct{}, events.CreateGridRequestArgs]

	SelectedItems *observable.Property[map[int]*models.EntityKey]
	FormViewKey   *observable.Property[*models.FormViewKey]

	List *ListHandler

	selectParam  *models.SelectParam
	gridSettings []models.GridSetting
	filter       *FilterHandler
	tooltips     *models.PropertyTooltips
}

// NewManager returns a manager bound to session. A nil session starts a new
// one.
func NewManager(deps Deps, session *models.SessionParams) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if session == nil {
		session = &models.SessionParams{}
	}
	lang := deps.UserLanguage
	if lang == nil {
		lang = func() string { return "" }
	}
	dict := deps.Dict
	if dict == nil {
		dict = untranslated{}
	}
	notifications := deps.Notifications
	if notifications == nil {
		notifications = events.NewNotificationService(logger)
	}
	m := &Manager{
		api:           deps.API,
		dict:          dict,
		lang:          lang,
		versions:      deps.Versions,
		progress:      deps.Progress,
		clientVersion: deps.ClientVersion,
		logger:        logger,
		session:       session,
		Notifications: notifications.Manager(events.CoreNotificationsScope),
		Toasts:        notifications.Manager(events.ToastManagerScope),
		SelectedItems: observable.NewProperty(map[int]*models.EntityKey{}, "SelectedItems"),
		FormViewKey:   observable.NewProperty[*models.FormViewKey](nil, "FormViewKey"),
	}
	m.Toolbar.Logger = logger
	m.Menu.Logger = logger
	m.EntityEvents.Logger = logger
	m.requestHooks.Logger = logger
	m.List = newListHandler(m)
	m.Toolbar.SubscribeDefaultAsync(m, m.OnToolbarCommand,
		events.ToolbarRefresh, events.ToolbarAdd, events.ToolbarEdit,
		events.ToolbarRead, events.ToolbarDelete, events.ToolbarSelect)
	events.ForwardMenuToToolbar(&m.Menu, &m.Toolbar, m)
	return m
}

// Initialize loads the entity described by req and its first page.
func (m *Manager) Initialize(ctx context.Context, req *models.GridRequest) (bool, error) {
	m.filter = nil
	m.selectParam = req.SelectParam
	ok, err := m.List.Initialize(ctx, req)
	if err != nil || !ok {
		return false, err
	}
	if m.Entity().Options.Has("RGO_FilterParams") {
		m.FilterHandler(ctx)
	}
	m.checkVersion(ctx)
	_, err = m.EntityEvents.Raise(ctx, events.EntityInitialized, m, events.EntityArgs{Kind: events.EntityInitialized, Manager: m})
	return true, err
}

// Entity returns the entity descriptor. It is empty until initialized.
func (m *Manager) Entity() *models.Entity {
	return m.List.Entity()
}

// EntityName implements events.EntityManager.
func (m *Manager) EntityName() string {
	return m.Entity().EntityName
}

// Session returns a copy of the session parameters.
func (m *Manager) Session() models.SessionParams {
	return *m.session
}

// DomID returns the element id of the grid.
func (m *Manager) DomID() string {
	return "RecroGrid-" + m.session.GridID
}

// SelectParam returns the selection the grid was opened for, or nil.
func (m *Manager) SelectParam() *models.SelectParam {
	return m.selectParam
}

// GridSettingList returns the stored layouts of the entity.
func (m *Manager) GridSettingList() []models.GridSetting {
	return m.gridSettings
}

// HasValidFormKey reports whether the form view shows an existing row.
func (m *Manager) HasValidFormKey() bool {
	k := m.FormViewKey.Value()
	return k != nil && !k.EntityKey.IsEmpty()
}

func (m *Manager) notify(ctx context.Context, category events.UserMessageType, message string, sender any) {
	m.raiseMessage(ctx, events.NewUserMessage(m.dict, category, message), sender)
}

func (m *Manager) raiseMessage(ctx context.Context, msg *events.UserMessage, sender any) {
	if err := events.Raise(ctx, m.Notifications, sender, msg); err != nil {
		m.logger.ErrorContext(ctx, "User message handler failed", "err", err)
	}
}

func (m *Manager) toast(ctx context.Context, t *events.Toast, sender any) {
	if err := events.Raise(ctx, m.Toasts, sender, t); err != nil {
		m.logger.ErrorContext(ctx, "Toast handler failed", "err", err)
	}
}

// unwrap reports a failed call as an error message and returns nil, or the
// result envelope.
func unwrap[T any](ctx context.Context, m *Manager, res *apiservice.Response[models.Result[T]]) *models.Result[T] {
	if !res.Success {
		m.notify(ctx, events.UserMessageError, res.ErrorMessage, m)
		return nil
	}
	return &res.Result
}

// BroadcastMessages raises one user message per server message, information
// first, then warnings, then errors.
func (m *Manager) BroadcastMessages(ctx context.Context, msgs *models.CoreMessages, sender any) {
	if msgs == nil {
		return
	}
	for _, c := range []struct {
		category events.UserMessageType
		list     *models.MessageList
	}{
		{events.UserMessageInformation, msgs.Info},
		{events.UserMessageWarning, msgs.Warning},
		{events.UserMessageError, msgs.Error},
	} {
		for _, text := range models.Messages(c.list) {
			m.notify(ctx, c.category, strings.ReplaceAll(text, "\r\n", "<br/>"), sender)
		}
	}
}

// OnCreateGridRequest registers fn to amend every request the manager
// builds.
func (m *Manager) OnCreateGridRequest(receiver any, fn events.Handler[events.CreateGridRequestArgs]) *events.Subscription {
	return m.requestHooks.SubscribeAll(receiver, fn)
}

// CreateGridRequest returns a request bound to the session, filled by fn and
// then by the registered hooks.
func (m *Manager) CreateGridRequest(ctx context.Context, fn func(*models.GridRequest)) *models.GridRequest {
	req := models.NewGridRequest(m.session)
	if fn != nil {
		fn(req)
	}
	e := events.NewEvent(m, events.CreateGridRequestArgs{Request: req})
	if _, err := m.requestHooks.Dispatch(ctx, struct{}{}, e); err != nil {
		m.logger.ErrorContext(ctx, "CreateGridRequest", "entity", req.EntityName, "err", err)
	}
	return e.Args.Request
}

// RecroGrid fetches grid data and records the session ids the server
// assigns.
func (m *Manager) RecroGrid(ctx context.Context, req *models.GridRequest) *models.Result[*models.GridResult] {
	m.logger.DebugContext(ctx, "RecroGrid", "entity", req.EntityName)
	res := unwrap(ctx, m, m.api.RecroGrid(ctx, req))
	if res != nil && res.Success && res.Result != nil {
		g := res.Result
		if m.session.SessionID == "" {
			m.session.SessionID = g.SessionID
		}
		if g.GridID != "" {
			m.session.GridID = g.GridID
		}
		if g.GridSettingList != nil {
			m.gridSettings = g.GridSettingList
		}
	}
	return res
}

// AggregateData runs an aggregate query built by ListHandler.AggregateRequest.
func (m *Manager) AggregateData(ctx context.Context, req *models.GridRequest) *models.Result[*models.GridResult] {
	m.logger.DebugContext(ctx, "AggregateData", "entity", req.EntityName)
	return unwrap(ctx, m, m.api.Aggregation(ctx, req))
}

// CallCustomFunction runs a server-side function.
func (m *Manager) CallCustomFunction(ctx context.Context, req *models.GridRequest) *models.Result[*models.CustomFunctionResult] {
	return unwrap(ctx, m, m.api.CustomFunction(ctx, req))
}

// Resource fetches a text resource in the user language unless query sets
// lang.
func (m *Manager) Resource(ctx context.Context, name string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	if !query.Has("lang") {
		query.Set("lang", m.lang())
	}
	res := m.api.TextResource(ctx, name, query)
	if !res.Success {
		m.notify(ctx, events.UserMessageError, res.ErrorMessage, m)
	}
	return res.Result
}

// Recreate reloads the entity metadata and the first page.
func (m *Manager) Recreate(ctx context.Context) (bool, error) {
	req := m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		r.EntityName = m.Entity().EntityName
		r.SelectParam = m.selectParam
		r.Skeleton = true
	})
	return m.Initialize(ctx, req)
}

// FilterHandler returns the filter handler, loading the filter description
// on first use.
func (m *Manager) FilterHandler(ctx context.Context) *FilterHandler {
	if m.filter != nil {
		return m.filter
	}
	var xmlFilter string
	var predefined []*models.FilterSettings
	if res := unwrap(ctx, m, m.api.Filter(ctx, m.CreateGridRequest(ctx, nil))); res != nil {
		if !res.Success {
			m.BroadcastMessages(ctx, res.Messages, m)
		} else if res.Result != nil {
			xmlFilter = res.Result.XMLFilter
			predefined = res.Result.FilterSettings
		}
	}
	m.filter = newFilterHandler(m, m.Entity(), xmlFilter, m.Entity().Options.String("RGO_FilterParams"), predefined)
	m.List.InitFilter(m.filter.StoreFilter())
	return m.filter
}

// InitFilterHandler replaces the filter with the JSON conditions.
func (m *Manager) InitFilterHandler(ctx context.Context, conditions string) {
	if m.filter != nil {
		m.filter.InitFilter(conditions)
		m.List.InitFilter(m.filter.StoreFilter())
	} else if conditions != "" {
		m.FilterHandler(ctx)
	}
}

// IsColumnFiltered reports whether a condition applies to p. A non-empty
// match also requires a quick filter with that value.
func (m *Manager) IsColumnFiltered(p *models.Property, match string) bool {
	return m.filter != nil && m.filter.IsColumnFiltered(p, match)
}

// SaveFilterSettings stores a predefined filter.
func (m *Manager) SaveFilterSettings(ctx context.Context, fs *models.FilterSettings) *models.Result[*models.FilterSetting] {
	req := m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		r.FilterSettings = fs
	})
	return unwrap(ctx, m, m.api.SaveFilterSettings(ctx, req))
}

// DeleteFilterSettings removes a predefined filter.
func (m *Manager) DeleteFilterSettings(ctx context.Context, id int) bool {
	req := m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		r.FilterSettings = &models.FilterSettings{FilterSettingsID: &id}
	})
	res := unwrap(ctx, m, m.api.DeleteFilterSettings(ctx, req))
	if res == nil {
		return false
	}
	if !res.Success {
		m.BroadcastMessages(ctx, res.Messages, m)
	}
	return res.Success
}

// SaveGridSettings stores a layout. Empty column settings reset the layout.
// With recreate, the grid is reloaded on success.
func (m *Manager) SaveGridSettings(ctx context.Context, settings *models.GridSettings, recreate bool) (*models.GridSetting, error) {
	req := m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		r.GridSettings = settings
	})
	action := "SaveSettings"
	if len(settings.ColumnSettings) == 0 {
		action = "ResetSettings"
	}
	t := events.NewActionToast(m.dict.UIString("Request"), m.Entity().Title, m.dict.UIString(action), "", events.ToastDefault)
	m.toast(ctx, t, m)
	res := unwrap(ctx, m, m.api.SaveGridSettings(ctx, req))
	if res == nil {
		return nil, nil
	}
	if !res.Success {
		m.BroadcastMessages(ctx, res.Messages, m)
		return res.Result, nil
	}
	m.toast(ctx, t.RecreateAsSuccess(m.dict.UIString("Processed")), m)
	if recreate {
		if _, err := m.Recreate(ctx); err != nil {
			return res.Result, err
		}
	}
	return res.Result, nil
}

// DeleteGridSettings removes a stored layout.
func (m *Manager) DeleteGridSettings(ctx context.Context, id int) bool {
	req := m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		r.GridSettings = &models.GridSettings{GridSettingsID: &id}
	})
	res := unwrap(ctx, m, m.api.DeleteGridSettings(ctx, req))
	if res == nil {
		return false
	}
	m.gridSettings = slices.DeleteFunc(slices.Clone(m.gridSettings), func(s models.GridSetting) bool {
		return s.GridSettingsID == id
	})
	if !res.Success {
		m.BroadcastMessages(ctx, res.Messages, m)
	}
	return true
}

// ChartSettingsList returns the stored charts of the entity.
func (m *Manager) ChartSettingsList(ctx context.Context) []*models.ChartSettings {
	res := unwrap(ctx, m, m.api.ChartSettings(ctx, m.CreateGridRequest(ctx, nil)))
	if res == nil {
		return nil
	}
	if !res.Success {
		m.BroadcastMessages(ctx, res.Messages, m)
	}
	return res.Result
}

// SaveChartSettings stores a chart bound to the current filter.
func (m *Manager) SaveChartSettings(ctx context.Context, settings *models.ChartSettings, recreate bool) (*models.ChartSettings, error) {
	req := m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		gs := m.List.GridSettings()
		settings.ParentGridSettings = &models.GridSettings{Conditions: gs.Conditions, SQLTimeout: gs.SQLTimeout}
		r.ChartSettings = settings
	})
	t := events.NewActionToast(m.dict.UIString("Request"), m.Entity().Title, m.dict.UIString("SaveSettings"), "", events.ToastDefault)
	m.toast(ctx, t, m)
	res := unwrap(ctx, m, m.api.SaveChartSettings(ctx, req))
	if res == nil {
		return nil, nil
	}
	if !res.Success {
		m.BroadcastMessages(ctx, res.Messages, m)
		return res.Result, nil
	}
	m.toast(ctx, t.RecreateAsSuccess(m.dict.UIString("Processed")), m)
	if recreate {
		if _, err := m.Recreate(ctx); err != nil {
			return res.Result, err
		}
	}
	return res.Result, nil
}

// DeleteChartSettings removes a stored chart.
func (m *Manager) DeleteChartSettings(ctx context.Context, id int) bool {
	req := m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		r.ChartSettings = &models.ChartSettings{ChartSettingsID: &id}
	})
	res := unwrap(ctx, m, m.api.DeleteChartSettings(ctx, req))
	if res == nil {
		return false
	}
	if !res.Success {
		m.BroadcastMessages(ctx, res.Messages, m)
	}
	return true
}

// NewFormHandler returns a form handler for the entity.
func (m *Manager) NewFormHandler() *FormHandler {
	return &FormHandler{m: m, logger: m.logger.With("handler", "form")}
}

// Form fetches the form of a row.
func (m *Manager) Form(ctx context.Context, req *models.GridRequest) *models.Result[*models.FormResult] {
	return unwrap(ctx, m, m.api.Form(ctx, req))
}

// PropertyTooltips returns the property help texts, fetched once.
func (m *Manager) PropertyTooltips(ctx context.Context) *models.PropertyTooltips {
	if m.tooltips != nil {
		return m.tooltips
	}
	e := m.Entity()
	text := m.Resource(ctx, "RecroGrid.xml", url.Values{
		"t":    {"tt"},
		"e":    {strconv.Itoa(e.EntityID)},
		"lang": {m.lang()},
	})
	t := &models.PropertyTooltips{EntityID: e.EntityID}
	if text != "" {
		if parsed, err := models.ParsePropertyTooltips(text); err != nil {
			m.logger.WarnContext(ctx, "PropertyTooltips", "entity", e.EntityName, "err", err)
		} else {
			t = parsed
		}
	}
	m.tooltips = t
	return t
}

// UpdateFormData saves form changes. The response rows carry the visible
// columns.
func (m *Manager) UpdateFormData(ctx context.Context, req *models.GridRequest) *models.Result[*models.FormResult] {
	req.UserColumns = m.List.UserColumns()
	return unwrap(ctx, m, m.api.UpdateData(ctx, req))
}

// DeleteData deletes one row and drops it from the list.
func (m *Manager) DeleteData(ctx context.Context, key *models.EntityKey) (*models.Result[*models.FormResult], error) {
	req := m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		r.EntityKey = key
	})
	res := unwrap(ctx, m, m.api.DeleteData(ctx, req))
	if res == nil {
		return nil, nil
	}
	if res.Success {
		if err := m.List.DeleteRow(ctx, key); err != nil {
			return res, err
		}
	}
	m.BroadcastMessages(ctx, res.Messages, m)
	return res, nil
}

// DeleteSelectedItems deletes the selected rows in row order and stops at
// the first failure. It returns the number of deleted rows.
func (m *Manager) DeleteSelectedItems(ctx context.Context) (int, error) {
	selected := m.SelectedItems.Value()
	rows := sortedRows(selected)
	count := 0
	for _, i := range rows {
		res, err := m.DeleteData(ctx, selected[i])
		if err != nil {
			return count, err
		}
		if res == nil || !res.Success {
			break
		}
		count++
		// Later rows moved up by one per deleted row.
		remaining := make(map[int]*models.EntityKey, len(rows)-count)
		for _, j := range rows[count:] {
			remaining[j-count] = selected[j]
		}
		if err := m.SelectedItems.ModifySilently(ctx, remaining); err != nil {
			return count, err
		}
	}
	if count == 0 {
		return 0, nil
	}
	if count == len(rows) {
		msg := format(m.dict.UIString("DelSuccess"), count)
		m.toast(ctx, events.NewActionToast(m.dict.UIString("Delete"), m.Entity().Title, msg, "", events.ToastSuccess), m)
	} else {
		msgs := &models.CoreMessages{}
		msgs.AddError("BulkDelete", format(m.dict.UIString("DelIncomplete"), count, len(rows)-count))
		m.BroadcastMessages(ctx, msgs, m)
	}
	return count, m.List.Refresh(ctx, nil)
}

// OnToolbarCommand is the default handler of the toolbar commands the grid
// implements itself.
func (m *Manager) OnToolbarCommand(ctx context.Context, e *events.Event[events.ToolbarArgs]) error {
	m.logger.DebugContext(ctx, "OnToolbarCommand", "cmd", e.Args.Action)
	e.Handled = true
	crud := m.List.CRUD()
	noDetails := m.Entity().Options.Bool("RGO_NoDetails")
	switch e.Args.Action {
	case events.ToolbarRefresh:
		return m.List.Refresh(ctx, nil)

	case events.ToolbarAdd:
		if crud.Add && !noDetails {
			return m.FormViewKey.SetValue(ctx, models.NewFormViewKey())
		}

	case events.ToolbarEdit, events.ToolbarRead:
		var key *models.FormViewKey
		if e.Args.Data != nil {
			if ek, ok := m.List.EntityKey(e.Args.Data); ok {
				key = &models.FormViewKey{EntityKey: ek, RowIndex: AbsoluteRowIndex(e.Args.Data)}
			}
		}
		selected := m.SelectedItems.Value()
		if key == nil && len(selected) == 1 && (crud.Read || crud.Edit) && !noDetails {
			for i, ek := range selected {
				key = &models.FormViewKey{EntityKey: ek, RowIndex: i}
			}
		}
		if key != nil && !key.EntityKey.IsEmpty() {
			return m.FormViewKey.SetValue(ctx, key)
		}

	case events.ToolbarDelete:
		if !crud.Delete || e.Args.Data == nil {
			return nil
		}
		if key, ok := m.List.EntityKey(e.Args.Data); ok && !key.IsEmpty() {
			if _, err := m.DeleteData(ctx, key); err != nil {
				return err
			}
			return m.SelectedItems.SetValue(ctx, map[int]*models.EntityKey{})
		}

	case events.ToolbarSelect:
		m.Select(ctx)
	}
	return nil
}

// Select hands the single selected row to the selection the grid was opened
// for.
func (m *Manager) Select(ctx context.Context) {
	sp := m.selectParam
	selected := m.SelectedItems.Value()
	if sp == nil || len(selected) != 1 {
		return
	}
	var row int
	var key *models.EntityKey
	for i, k := range selected {
		row, key = i, k
	}
	if !key.IsEmpty() {
		m.logger.DebugContext(ctx, "OnSelect", "key", key.Keys)
		sp.SelectedKeys = []*models.EntityKey{key}
	}
	if sp.Filter.Keys.Len() > 0 {
		if data := m.List.RowData(row); data != nil {
			parent := sp.Filter.Keys.Names()[0]
			for _, p := range m.Entity().Properties {
				if p.Options.String("ParClientName") == parent {
					sp.Filter.Keys.Set(parent, data.Value(p.Alias))
					break
				}
			}
		}
	}
	if sp.ItemSelected != nil {
		sp.ItemSelected(ctx)
	}
}

// About returns the about dialog HTML with the client version filled in.
func (m *Manager) About(ctx context.Context) string {
	res := m.api.About(ctx)
	if !res.Success {
		m.notify(ctx, events.UserMessageError, res.ErrorMessage, m)
	}
	about := res.Result
	if about != "" && m.clientVersion != "" {
		about = strings.Replace(about, `<div class="client-ver"></div>`,
			fmt.Sprintf(`<div class="client-ver">RecroGrid Framework Go client v%s</div>`, m.clientVersion), 1)
	}
	return about
}

// checkVersion warns once per application when the server core is older
// than the supported minimum.
func (m *Manager) checkVersion(ctx context.Context) {
	v := m.versions
	if v == nil {
		return
	}
	v.checking.Lock()
	defer v.checking.Unlock()
	if v.Current() != nil {
		return
	}
	res := unwrap(ctx, m, m.api.VersionCompatibility(ctx))
	if res == nil {
		return
	}
	if s, ok := res.Result[models.CoreVersionKey]; ok {
		if cur, err := semver.NewVersion(s); err == nil {
			v.set(cur)
			if v.minimum != nil && cur.LessThan(v.minimum) {
				m.logger.WarnContext(ctx, incompatibleTitle, "core", cur.String(), "minimum", v.minimum.String())
				m.raiseMessage(ctx, &events.UserMessage{
					Category: events.UserMessageWarning,
					Origin:   events.OriginGlobal,
					Title:    incompatibleTitle,
					Message:  fmt.Sprintf(incompatibleMessage, cur, v.minimum),
				}, m)
			}
		}
	}
	m.BroadcastMessages(ctx, res.Messages, m)
}

// Close raises the destroy event and releases the subscriptions of the grid.
func (m *Manager) Close(ctx context.Context) error {
	_, err := m.EntityEvents.Raise(ctx, events.EntityDestroy, m, events.EntityArgs{Kind: events.EntityDestroy, Manager: m})
	m.List.Close()
	m.Toolbar.Unsubscribe(m)
	m.Menu.Unsubscribe(m)
	return err
}

// format substitutes {0}, {1}... in a dictionary template.
func format(template string, args ...any) string {
	pairs := make([]string, 0, 2*len(args))
	for i, a := range args {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", fmt.Sprint(a))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
