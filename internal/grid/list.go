package grid

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/recrovit/rgfclient/internal/events"
	"github.com/recrovit/rgfclient/internal/models"
	"github.com/recrovit/rgfclient/internal/observable"
	"github.com/recrovit/rgfclient/internal/pagecache"
	"github.com/recrovit/rgfclient/internal/record"
)

// ListHandler pages through the rows of an entity. Fetched rows are kept in
// a page cache; the observable properties drive the views.
type ListHandler struct {
	m      *Manager
	logger *slog.Logger

	ItemCount      *observable.Property[int]
	PageSize       *observable.Property[int]
	ActivePage     *observable.Property[int]
	IsLoading      *observable.Property[bool]
	ListDataSource *observable.Property[[]*record.Record]

	entity      *models.Entity
	types       map[string]record.DataType
	crud        models.Permissions
	initialized bool
	cache       *pagecache.Cache[[]any]
	listParam   *models.ListParam
	dataColumns []string
	options     models.Options
	querySkip   int
	queryString string
	preselected []int
	subs        []*observable.Subscription
}

func newListHandler(m *Manager) *ListHandler {
	return &ListHandler{
		m:              m,
		logger:         m.logger.With("handler", "list"),
		ItemCount:      observable.NewProperty(-1, "ItemCount"),
		PageSize:       observable.NewProperty(0, "PageSize"),
		ActivePage:     observable.NewProperty(1, "ActivePage"),
		IsLoading:      observable.NewProperty(false, "IsLoading"),
		ListDataSource: observable.NewProperty([]*record.Record{}, "ListDataSource"),
		entity:         &models.Entity{},
		cache:          pagecache.New[[]any](0),
		listParam:      &models.ListParam{},
	}
}

// Entity returns the entity descriptor, empty before the first load.
func (h *ListHandler) Entity() *models.Entity { return h.entity }

// CRUD returns the operations the user may perform on the entity.
func (h *ListHandler) CRUD() models.Permissions { return h.crud }

// Initialized reports whether the entity metadata is loaded.
func (h *ListHandler) Initialized() bool { return h.initialized }

// DataColumns returns the column names of the raw rows.
func (h *ListHandler) DataColumns() []string { return slices.Clone(h.dataColumns) }

// IsFiltered reports whether a user filter applies.
func (h *ListHandler) IsFiltered() bool { return len(h.listParam.UserFilter) > 0 }

// QueryString returns the SQL text of the last query when the server
// exposes it.
func (h *ListHandler) QueryString() string { return h.queryString }

// QuerySkip returns the server-side skip of the last query.
func (h *ListHandler) QuerySkip() int { return h.querySkip }

// SQLTimeout returns the query timeout in seconds, or nil for the server
// default.
func (h *ListHandler) SQLTimeout() *int { return h.listParam.SQLTimeout }

// Options returns the options of the last grid result.
func (h *ListHandler) Options() models.Options { return h.options }

// PreselectedRows returns the rows the server marked selected.
func (h *ListHandler) PreselectedRows() []int { return h.preselected }

// UserColumns returns the ids of the visible columns in display order.
func (h *ListHandler) UserColumns() []int {
	var ids []int
	for _, p := range h.entity.SortedVisibleColumns() {
		ids = append(ids, p.ID)
	}
	return ids
}

// Initialize loads the entity metadata and the first page.
func (h *ListHandler) Initialize(ctx context.Context, req *models.GridRequest) (bool, error) {
	if h.subs == nil {
		h.subs = append(h.subs,
			h.PageSize.OnAfterChangeAsync(h, h.pageSizeChanged),
			h.ActivePage.OnAfterChangeAsync(h, func(ctx context.Context, c observable.Change[int]) error {
				return h.pageChanging(ctx, c.New, nil)
			}))
	}
	h.initialized = false
	ok, err := h.loadRecroGrid(ctx, req, 0, true)
	if err != nil || !ok {
		return false, err
	}
	if _, err := h.DataList(ctx, nil); err != nil {
		return false, err
	}
	return true, nil
}

// DataList returns the rows of the active page, fetching them when not
// cached, and publishes them on ListDataSource. A non-nil gridSettingsID
// reloads the grid with that stored layout.
func (h *ListHandler) DataList(ctx context.Context, gridSettingsID *int) ([]*record.Record, error) {
	list, err := h.dataList(ctx, h.listParam, gridSettingsID)
	if err != nil {
		return nil, err
	}
	if err := h.ListDataSource.SetValue(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (h *ListHandler) dataList(ctx context.Context, lp *models.ListParam, gridSettingsID *int) ([]*record.Record, error) {
	if err := h.IsLoading.SetValue(ctx, true); err != nil {
		return nil, err
	}
	defer h.stopLoading(ctx)
	if !h.initialized {
		return []*record.Record{}, nil
	}
	pageSize := h.PageSize.Value()
	page := pagecache.PageOf(lp.Skip, pageSize)
	if list, ok := h.cachedPage(page); ok {
		return list, nil
	}
	lp.Columns = h.UserColumns()
	req := h.m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		r.EntityName = h.entity.EntityName
		if gridSettingsID != nil {
			r.GridSettings = &models.GridSettings{GridSettingsID: gridSettingsID}
			r.ListParam = &models.ListParam{Reset: true}
			r.Skeleton = true
		} else {
			// Only forward paging is preloaded, so one page is enough.
			lp.Preload = pageSize
			r.ListParam = lp
		}
	})
	if _, err := h.loadRecroGrid(ctx, req, page, gridSettingsID != nil); err != nil {
		return nil, err
	}
	if gridSettingsID != nil {
		h.m.InitFilterHandler(ctx, h.entity.Options.String("RGO_FilterParams"))
	}
	if list, ok := h.cachedPage(page); ok {
		return list, nil
	}
	return []*record.Record{}, nil
}

func (h *ListHandler) stopLoading(ctx context.Context) {
	if err := h.IsLoading.SetValue(context.WithoutCancel(ctx), false); err != nil {
		h.logger.WarnContext(ctx, "IsLoading", "err", err)
	}
}

// DataRange returns the rows with absolute indices in [start, end],
// fetching the pages it spans. It returns nil for an invalid range.
func (h *ListHandler) DataRange(ctx context.Context, start, end int) ([]*record.Record, error) {
	pageSize := h.PageSize.Value()
	if start < 0 || end > h.ItemCount.Value() || pageSize == 0 || start > end {
		return nil, nil
	}
	var list []*record.Record
	first, last := pagecache.PageOf(start, pageSize), pagecache.PageOf(end, pageSize)
	lp := h.listParam.Clone()
	for i := first; i <= last; i++ {
		lp.Skip = i * pageSize
		data, err := h.dataList(ctx, lp, nil)
		if err != nil {
			return nil, err
		}
		from, to := 0, pageSize
		if i == first {
			from = pagecache.OffsetOf(start, pageSize)
		}
		if i == last {
			to = pagecache.OffsetOf(end, pageSize) + 1
		}
		to = min(to, len(data))
		if from < to {
			list = append(list, data[from:to]...)
		}
	}
	return list, nil
}

// Refresh drops the cache and reloads the first page.
func (h *ListHandler) Refresh(ctx context.Context, gridSettingsID *int) error {
	h.m.toast(ctx, events.NewToast(h.entity.MenuTitle, h.m.dict.UIString("Refresh"), events.ToastDefault).WithDelay(2*time.Second), h)
	if err := h.clearCache(ctx); err != nil {
		return err
	}
	if h.ActivePage.Value() == 1 {
		_, err := h.DataList(ctx, gridSettingsID)
		return err
	}
	if gridSettingsID == nil {
		return h.ActivePage.SetValue(ctx, 1)
	}
	if err := h.ActivePage.ModifySilently(ctx, 1); err != nil {
		return err
	}
	return h.pageChanging(ctx, 1, gridSettingsID)
}

func (h *ListHandler) pageChanging(ctx context.Context, page int, gridSettingsID *int) error {
	h.listParam.Skip = max(pagecache.FirstRow(page, h.PageSize.Value()), 0)
	_, err := h.DataList(ctx, gridSettingsID)
	return err
}

func (h *ListHandler) pageSizeChanged(ctx context.Context, c observable.Change[int]) error {
	if c.Orig == c.New {
		return nil
	}
	h.listParam.Take = c.New
	h.listParam.Skip = 0
	return h.clearCache(ctx)
}

func (h *ListHandler) clearCache(ctx context.Context) error {
	h.cache = pagecache.New[[]any](h.PageSize.Value())
	count := true
	h.listParam.Count = &count
	return h.m.SelectedItems.SetValue(ctx, map[int]*models.EntityKey{})
}

// AggregateRequest returns a request running settings over the current
// filter.
func (h *ListHandler) AggregateRequest(ctx context.Context, settings *models.AggregationSettings) *models.GridRequest {
	lp := h.listParam.Clone()
	lp.AggregationSettings = settings
	return h.m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		r.EntityName = h.entity.EntityName
		r.ListParam = lp
	})
}

// SortColumn orders the grid by a column. Sort is the one-based priority,
// negative for descending order.
type SortColumn struct {
	Alias string
	Sort  int
}

// SetSort replaces the sort order and reloads the grid when it changed.
func (h *ListHandler) SetSort(ctx context.Context, sort []SortColumn) (bool, error) {
	bySort := make(map[*models.Property]int, len(sort))
	order := make([][2]int, 0, len(sort))
	for _, s := range sort {
		p := h.entity.PropertyByAlias(s.Alias)
		if p == nil {
			return false, fmt.Errorf("%w: %s", ErrUnknownColumn, s.Alias)
		}
		bySort[p] = s.Sort
		order = append(order, [2]int{p.ID, s.Sort})
	}
	h.listParam.Sort = order
	h.listParam.Skip = 0
	changed := false
	for _, p := range h.entity.Properties {
		s := bySort[p]
		if p.Sort != s {
			p.Sort = s
			changed = true
		}
	}
	if changed {
		return true, h.Refresh(ctx, nil)
	}
	return false, nil
}

// SetVisibleColumns applies column positions and widths. A column becoming
// visible needs a reload; other changes only refresh the view.
func (h *ListHandler) SetVisibleColumns(ctx context.Context, columns []models.ColumnSettings) (bool, error) {
	reload, changed := false, false
	for _, c := range columns {
		p := h.entity.PropertyByID(c.PropertyID)
		if p == nil {
			continue
		}
		if p.ColPos != c.ColPos {
			changed = true
			if p.ColPos == 0 {
				reload = true
			}
			p.ColPos = c.ColPos
		}
		if p.ColWidth != c.ColWidth {
			changed = true
			p.ColWidth = c.ColWidth
		}
	}
	h.renumberColumns(h.entity.SortedVisibleColumns())
	switch {
	case reload:
		return true, h.Refresh(ctx, nil)
	case changed:
		_, err := h.DataList(ctx, nil)
		return true, err
	}
	return false, nil
}

func (h *ListHandler) renumberColumns(cols []*models.Property) {
	for i, p := range cols {
		p.ColPos = i + 1
	}
}

// ReplaceColumnWidthByIndex sets the width of the one-based visible column.
func (h *ListHandler) ReplaceColumnWidthByIndex(index, width int) {
	cols := h.entity.SortedVisibleColumns()
	if index > 0 && index <= len(cols) {
		h.ReplaceColumnWidth(cols[index-1].Alias, width)
	}
}

// ReplaceColumnWidth sets the width of the column with alias.
func (h *ListHandler) ReplaceColumnWidth(alias string, width int) {
	h.logger.Debug("ReplaceColumnWidth", "alias", alias, "width", width)
	if p := h.entity.PropertyByAlias(alias); p != nil {
		p.ColWidth = width
	}
}

// MoveColumn moves the one-based visible column oldIndex to newIndex.
func (h *ListHandler) MoveColumn(ctx context.Context, oldIndex, newIndex int, refresh bool) error {
	h.logger.DebugContext(ctx, "MoveColumn", "old", oldIndex, "new", newIndex)
	cols := h.entity.SortedVisibleColumns()
	if oldIndex == newIndex || oldIndex < 1 || oldIndex > len(cols) || newIndex < 1 || newIndex > len(cols) {
		return nil
	}
	p := cols[oldIndex-1]
	cols = slices.Delete(cols, oldIndex-1, oldIndex)
	cols = slices.Insert(cols, newIndex-1, p)
	h.renumberColumns(cols)
	h.listParam.Columns = h.UserColumns()
	if refresh {
		_, err := h.DataList(ctx, nil)
		return err
	}
	return nil
}

// InitFilter sets the user filter without reloading.
func (h *ListHandler) InitFilter(conditions []*models.Condition) {
	h.listParam.UserFilter = conditions
}

// SetFilter sets the user filter and the query timeout, then reloads.
func (h *ListHandler) SetFilter(ctx context.Context, conditions []*models.Condition, sqlTimeout *int) error {
	h.InitFilter(conditions)
	h.listParam.SQLTimeout = sqlTimeout
	return h.Refresh(ctx, nil)
}

// EntityKeyValues returns the key columns of row. A key column missing under
// its client name is looked up by alias.
func (h *ListHandler) EntityKeyValues(row *record.Record) *record.Record {
	key := record.New()
	keys := h.entity.KeyProperties()
	for _, name := range h.dataColumns {
		i := slices.IndexFunc(keys, func(p *models.Property) bool { return p.ClientName == name })
		if i < 0 {
			continue
		}
		if v, ok := row.Get(name); ok && !v.IsNull() {
			key.Set(name, v)
		} else if alias := keys[i].Alias; alias != "" {
			if v, ok := row.Get(alias); ok && !v.IsNull() {
				key.Set(name, v)
			}
		}
	}
	return key
}

// EntityKey returns the key of row. It reports false when the row carries no
// key signature.
func (h *ListHandler) EntityKey(row *record.Record) (*models.EntityKey, bool) {
	v, ok := row.Params().Get("keySign")
	if !ok {
		return nil, false
	}
	return &models.EntityKey{Keys: h.EntityKeyValues(row), Signature: v.String()}, true
}

// EnsureVisible switches to the page holding the absolute row and returns
// the row.
func (h *ListHandler) EnsureVisible(ctx context.Context, absolute int) (*record.Record, error) {
	if absolute < 0 || absolute >= h.ItemCount.Value() {
		return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, absolute)
	}
	pageSize := h.PageSize.Value()
	if h.ToRelativeRowIndex(absolute) < 0 {
		h.logger.DebugContext(ctx, "EnsureVisible", "row", absolute)
		if err := h.ActivePage.SetValue(ctx, pagecache.PageOf(absolute, pageSize)+1); err != nil {
			return nil, err
		}
	}
	list := h.ListDataSource.Value()
	i := absolute - pagecache.FirstRow(h.ActivePage.Value(), pageSize)
	if i < 0 || i >= len(list) {
		return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, absolute)
	}
	return list[i], nil
}

// RowData returns the absolute row from the active page or the cache, or
// nil when it is not loaded.
func (h *ListHandler) RowData(absolute int) *record.Record {
	pageSize := h.PageSize.Value()
	if pageSize <= 0 || absolute < 0 {
		return nil
	}
	if rel := h.ToRelativeRowIndex(absolute); rel >= 0 {
		if list := h.ListDataSource.Value(); rel < len(list) {
			return list[rel]
		}
		return nil
	}
	rows, ok := h.cache.TryGetData(pagecache.PageOf(absolute, pageSize))
	offset := pagecache.OffsetOf(absolute, pageSize)
	if !ok || offset >= len(rows) {
		return nil
	}
	return h.toRecord(rows[offset], absolute)
}

// GridSettings captures the current layout, filter and sort.
func (h *ListHandler) GridSettings() *models.GridSettings {
	cols := h.entity.SortedVisibleColumns()
	settings := &models.GridSettings{
		ColumnSettings: make([]models.ColumnSettings, 0, len(cols)),
		Conditions:     h.listParam.UserFilter,
		Sort:           h.listParam.Sort,
		SQLTimeout:     h.listParam.SQLTimeout,
	}
	for _, p := range cols {
		settings.ColumnSettings = append(settings.ColumnSettings, models.NewColumnSettings(p))
	}
	pageSize := h.PageSize.Value()
	settings.PageSize = &pageSize
	return settings
}

// AddRow shows a new row first on page 1. Other cached pages are dropped
// since every row after it moved.
func (h *ListHandler) AddRow(ctx context.Context, row *record.Record) error {
	if h.EntityKeyValues(row).Len() == 0 {
		return nil
	}
	rows, ok := h.cache.TryGetData(0)
	if !ok {
		return nil
	}
	page := make([][]any, 0, len(rows)+1)
	page = append(page, row.Row(h.dataColumns))
	page = append(page, rows...)
	if pageSize := h.cache.PageSize(); len(page) > pageSize {
		page = page[:pageSize]
	}
	h.cache.Clear()
	h.cache.AddOrReplaceMultiple(0, page)
	if err := h.ItemCount.SetValue(ctx, h.ItemCount.Value()+1); err != nil {
		return err
	}
	if h.ActivePage.Value() == 1 {
		_, err := h.DataList(ctx, nil)
		return err
	}
	return h.ActivePage.SetValue(ctx, 1)
}

// RefreshRow replaces the row with the same key on the active page.
func (h *ListHandler) RefreshRow(ctx context.Context, row *record.Record) error {
	key := h.EntityKeyValues(row)
	if key.Len() == 0 {
		return nil
	}
	page := h.ActivePage.Value() - 1
	i, rows := h.findRow(page, key)
	if i < 0 {
		return nil
	}
	rows = slices.Clone(rows)
	rows[i] = row.Row(h.dataColumns)
	h.cache.Replace(page, rows)
	_, err := h.DataList(ctx, nil)
	return err
}

// DeleteRow drops the row with key from the active page. The page and every
// later one are evicted since their rows shifted.
func (h *ListHandler) DeleteRow(ctx context.Context, key *models.EntityKey) error {
	if key.IsEmpty() {
		return nil
	}
	page := h.ActivePage.Value() - 1
	if i, _ := h.findRow(page, key.Keys); i < 0 {
		return nil
	}
	h.cache.RemovePages(page, math.MaxInt)
	if err := h.ItemCount.SetValue(ctx, h.ItemCount.Value()-1); err != nil {
		return err
	}
	_, err := h.DataList(ctx, nil)
	return err
}

func (h *ListHandler) findRow(page int, key *record.Record) (int, [][]any) {
	rows, ok := h.cache.TryGetData(page)
	if !ok {
		return -1, nil
	}
	for i, raw := range rows {
		if key.Equal(h.EntityKeyValues(record.FromRow(h.dataColumns, raw, h.types))) {
			return i, rows
		}
	}
	return -1, rows
}

func (h *ListHandler) loadRecroGrid(ctx context.Context, req *models.GridRequest, page int, init bool) (bool, error) {
	if !init && h.entity.Options.Bool("RGO_ClientMode") {
		h.m.toast(ctx, events.NewToast(h.entity.MenuTitle, h.m.dict.UIString("InvalidOperation"), events.ToastInfo), h)
		return false, nil
	}
	if err := h.IsLoading.SetValue(ctx, true); err != nil {
		return false, err
	}
	defer h.stopLoading(ctx)

	res := h.m.RecroGrid(ctx, req)
	if res != nil {
		h.m.BroadcastMessages(ctx, res.Messages, h)
	}
	if res == nil || !res.Success || res.Result == nil {
		return false, h.ItemCount.SetValue(ctx, 0)
	}
	g := res.Result
	if g.EntityDesc != nil {
		h.entity = g.EntityDesc
		h.types = g.EntityDesc.DataTypes()
		h.crud = models.ParsePermissions(g.EntityDesc.CRUD)
		h.listParam.SQLTimeout = nil
		if t, ok := h.entity.Options.IntOK("RGO_SQLTimeout"); ok {
			h.listParam.SQLTimeout = &t
		}
	}
	if init {
		if err := h.PageSize.SetValue(ctx, h.entity.ItemsPerPage); err != nil {
			return false, err
		}
		h.listParam.Take = h.PageSize.Value()
		h.listParam.Skip = 0
		h.listParam.UserFilter = []*models.Condition{}
		h.listParam.Sort = nil
		for _, p := range h.entity.SortColumns() {
			h.listParam.Sort = append(h.listParam.Sort, [2]int{p.ID, p.Sort})
		}
		if err := h.clearCache(ctx); err != nil {
			return false, err
		}
	}
	if g.Options != nil {
		h.options = g.Options
		h.querySkip = int(g.Options.Int64("RGO_QuerySkip", int64(h.querySkip)))
		if err := h.ItemCount.SetValue(ctx, int(g.Options.Int64("RGO_MaxItem", int64(h.ItemCount.Value())))); err != nil {
			return false, err
		}
		h.queryString = g.Options.String("RGO_QueryString")
	}
	if g.DataColumns != nil {
		h.dataColumns = g.DataColumns
	}
	h.preselected = g.SelectedItems
	if g.Data != nil {
		h.cache.AddOrReplaceMultiple(page, g.Data)
		h.listParam.Count = nil
	}
	h.initialized = true
	return true, nil
}

func (h *ListHandler) cachedPage(page int) ([]*record.Record, bool) {
	rows, ok := h.cache.TryGetData(page)
	if !ok {
		return nil, false
	}
	first := page * h.PageSize.Value()
	list := make([]*record.Record, 0, len(rows))
	for i, raw := range rows {
		list = append(list, h.toRecord(raw, first+i))
	}
	return list, true
}

// toRecord builds the record of a cached row. The row parameters are
// copied so the cached row stays untouched.
func (h *ListHandler) toRecord(raw []any, absolute int) *record.Record {
	r := record.FromRow(h.dataColumns, raw, h.types)
	params := r.Params().Clone()
	params.Set("rowIndex", absolute)
	r.Set(record.ParamsKey, params)
	return r
}

// Close releases the property subscriptions of the handler.
func (h *ListHandler) Close() {
	for _, s := range h.subs {
		s.Unsubscribe()
	}
	h.subs = nil
}
