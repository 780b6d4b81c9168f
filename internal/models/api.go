package models

import (
	"context"
	"fmt"
	"iter"

	"github.com/recrovit/rgfclient/internal/record"
	"github.com/tiendc/go-deepcopy"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// SessionParams identifies the grid session on the server. Both fields are
// assigned by the server on the first grid request.
type SessionParams struct {
	SessionID string `json:"sessionId,omitempty"`
	GridID    string `json:"gridId,omitempty"`
}

// ListParam selects the page, order and filter of a grid query.
type ListParam struct {
	Skip                int                  `json:"skip"`
	Take                int                  `json:"take"`
	Sort                [][2]int             `json:"sort,omitempty"`
	UserFilter          []*Condition         `json:"userFilter,omitempty"`
	Columns             []int                `json:"columns,omitempty"`
	Preload             int                  `json:"preload,omitempty"`
	Count               *bool                `json:"count,omitempty"`
	Reset               bool                 `json:"reset,omitempty"`
	SQLTimeout          *int                 `json:"sqlTimeout,omitempty"`
	AggregationSettings *AggregationSettings `json:"aggregationSettings,omitempty"`
}

// Clone returns a deep copy of p.
func (p *ListParam) Clone() *ListParam {
	out := &ListParam{}
	if err := deepcopy.Copy(out, p); err != nil {
		// ListParam holds only copyable types.
		panic(fmt.Sprintf("failed to copy list param: %v", err))
	}
	return out
}

// SelectFilter restricts a selection grid to the rows of a parent.
type SelectFilter struct {
	Keys *record.Record `json:"keys,omitempty"`
}

// SelectParam describes a grid opened to pick a row.
type SelectParam struct {
	SelectedKeys []*EntityKey `json:"selectedKeys,omitempty"`
	Filter       SelectFilter `json:"filter"`

	// ItemSelected is called once the user has picked a row.
	ItemSelected func(ctx context.Context) `json:"-"`
}

// GridRequest is the body of every entity endpoint.
type GridRequest struct {
	SessionParams
	EntityName         string          `json:"entityName,omitempty"`
	EntityKey          *EntityKey      `json:"entityKey,omitempty"`
	ListParam          *ListParam      `json:"listParam,omitempty"`
	GridSettings       *GridSettings   `json:"gridSettings,omitempty"`
	ChartSettings      *ChartSettings  `json:"chartSettings,omitempty"`
	FilterSettings     *FilterSettings `json:"filterSettings,omitempty"`
	SelectParam        *SelectParam    `json:"selectParam,omitempty"`
	Skeleton           bool            `json:"skeleton,omitempty"`
	Data               *record.Record  `json:"data,omitempty"`
	UserColumns        []int           `json:"userColumns,omitempty"`
	FunctionName       string          `json:"functionName,omitempty"`
	ClientConnectionID string          `json:"clientConnectionId,omitempty"`
	CustomParams       map[string]any  `json:"customParams,omitempty"`
}

// NewGridRequest returns a request bound to the session.
func NewGridRequest(session *SessionParams) *GridRequest {
	r := &GridRequest{}
	if session != nil {
		r.SessionParams = *session
	}
	return r
}

// ColumnSettings is the position and width of a column.
type ColumnSettings struct {
	PropertyID int `json:"propertyId"`
	ColPos     int `json:"colPos"`
	ColWidth   int `json:"colWidth"`
}

// NewColumnSettings captures the layout of p.
func NewColumnSettings(p *Property) ColumnSettings {
	return ColumnSettings{PropertyID: p.ID, ColPos: p.ColPos, ColWidth: p.ColWidth}
}

// GridSettings is a stored grid layout. Empty ColumnSettings reset the
// layout to the entity default.
type GridSettings struct {
	GridSettingsID *int             `json:"gridSettingsId,omitempty"`
	SettingsName   string           `json:"settingsName,omitempty"`
	IsPublic       bool             `json:"isPublic,omitempty"`
	ColumnSettings []ColumnSettings `json:"columnSettings,omitempty"`
	Conditions     []*Condition     `json:"conditions,omitempty"`
	Sort           [][2]int         `json:"sort,omitempty"`
	PageSize       *int             `json:"pageSize,omitempty"`
	SQLTimeout     *int             `json:"sqlTimeout,omitempty"`
}

// GridSetting is an entry of the stored layout list.
type GridSetting struct {
	GridSettingsID int    `json:"gridSettingsId"`
	SettingsName   string `json:"settingsName"`
	IsPublic       bool   `json:"isPublic"`
	IsReadonly     bool   `json:"isReadonly"`
}

// AggregationColumn is an aggregate function applied to a property.
type AggregationColumn struct {
	Aggregate  string `json:"aggregate"`
	PropertyID int    `json:"id"`
}

// AggregationSettings turns a grid query into an aggregate query.
type AggregationSettings struct {
	Columns []AggregationColumn `json:"columns"`
	Groups  []int               `json:"groups,omitempty"`
	Sub     []int               `json:"sub,omitempty"`
}

// ChartSettings is a stored chart definition.
type ChartSettings struct {
	ChartSettingsID     *int                 `json:"chartSettingsId,omitempty"`
	SettingsName        string               `json:"settingsName,omitempty"`
	IsPublic            bool                 `json:"isPublic,omitempty"`
	AggregationSettings *AggregationSettings `json:"aggregationSettings,omitempty"`
	ParentGridSettings  *GridSettings        `json:"parentGridSettings,omitempty"`
}

// MessageList is an ordered key to message mapping.
type MessageList = orderedmap.OrderedMap[string, string]

// CoreMessages are the user-facing messages attached to a result. Each
// category keeps the server's order.
type CoreMessages struct {
	Info    *MessageList `json:"info,omitempty"`
	Warning *MessageList `json:"warning,omitempty"`
	Error   *MessageList `json:"error,omitempty"`
}

// AddInfo appends an information message.
func (m *CoreMessages) AddInfo(key, msg string) { m.Info = add(m.Info, key, msg) }

// AddWarning appends a warning.
func (m *CoreMessages) AddWarning(key, msg string) { m.Warning = add(m.Warning, key, msg) }

// AddError appends an error.
func (m *CoreMessages) AddError(key, msg string) { m.Error = add(m.Error, key, msg) }

func add(l *MessageList, key, msg string) *MessageList {
	if l == nil {
		l = orderedmap.New[string, string]()
	}
	l.Set(key, msg)
	return l
}

// Messages iterates over the messages of one category in order.
func Messages(l *MessageList) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if l == nil {
			return
		}
		for p := l.Oldest(); p != nil; p = p.Next() {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// IsEmpty reports whether m holds no message.
func (m *CoreMessages) IsEmpty() bool {
	return m == nil || (size(m.Info) == 0 && size(m.Warning) == 0 && size(m.Error) == 0)
}

func size(l *MessageList) int {
	if l == nil {
		return 0
	}
	return l.Len()
}

// Result is the envelope of every entity endpoint response.
type Result[T any] struct {
	Success  bool          `json:"success"`
	Messages *CoreMessages `json:"messages,omitempty"`
	Result   T             `json:"result"`
}

// EmptyResult is the payload of endpoints that return nothing.
type EmptyResult struct{}

// GridResult carries entity metadata and a batch of rows.
type GridResult struct {
	SessionID       string        `json:"sessionId,omitempty"`
	GridID          string        `json:"gridId,omitempty"`
	EntityDesc      *Entity       `json:"entityDesc,omitempty"`
	DataColumns     []string      `json:"dataColumns,omitempty"`
	Data            [][]any       `json:"data,omitempty"`
	Options         Options       `json:"options,omitempty"`
	SelectedItems   []int         `json:"selectedItems,omitempty"`
	GridSettingList []GridSetting `json:"gridSettingList,omitempty"`
}

// Record returns row i of the batch as a record.
func (g *GridResult) Record(i int) *record.Record {
	var types map[string]record.DataType
	if g.EntityDesc != nil {
		types = g.EntityDesc.DataTypes()
	}
	return record.FromRow(g.DataColumns, g.Data[i], types)
}

// FormResult is the response of the form and data modification endpoints.
type FormResult struct {
	EntityKey     *EntityKey  `json:"entityKey,omitempty"`
	XMLForm       string      `json:"xmlForm,omitempty"`
	StyleSheetURL string      `json:"styleSheetUrl,omitempty"`
	GridResult    *GridResult `json:"gridResult,omitempty"`
}

// FilterResult is the response of the filter endpoint.
type FilterResult struct {
	XMLFilter      string            `json:"xmlFilter"`
	FilterSettings []*FilterSettings `json:"filterSettings,omitempty"`
}

// FilterSetting is the response of a filter settings save.
type FilterSetting struct {
	FilterSettingsID int `json:"filterSettingsId"`
}

// CustomFunctionResult is the response of a server-side function call.
type CustomFunctionResult struct {
	RefreshGrid bool           `json:"refreshGrid,omitempty"`
	GridResult  *GridResult    `json:"gridResult,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// UserState is the server-side state of the signed-in user.
type UserState struct {
	IsValid  bool   `json:"isValid"`
	IsAdmin  bool   `json:"isAdmin"`
	Language string `json:"language,omitempty"`
}

// RecroSecQuery asks for the permissions on an entity or a named object.
type RecroSecQuery struct {
	EntityName string `json:"entityName,omitempty"`
	ObjectName string `json:"objectName,omitempty"`
	ObjectKey  string `json:"objectKey,omitempty"`
}

// CacheKey returns the permission cache key of q.
func (q RecroSecQuery) CacheKey() string {
	return q.EntityName + "/" + q.ObjectName + "/" + q.ObjectKey
}

// RecroSecResult answers a RecroSecQuery.
type RecroSecResult struct {
	Query       RecroSecQuery `json:"query"`
	Permissions Permissions   `json:"permissions"`
}

// Menu is an entry of an application menu.
type Menu struct {
	MenuID    int     `json:"menuId,omitempty"`
	Title     string  `json:"title"`
	Command   string  `json:"command,omitempty"`
	MenuType  string  `json:"menuType,omitempty"`
	NewWindow bool    `json:"newWindow,omitempty"`
	Items     []*Menu `json:"items,omitempty"`
}

// ProgressType is the state reported by a long-running server function.
type ProgressType int

const (
	ProgressUndefined ProgressType = iota
	ProgressStarted
	ProgressInProgress
	ProgressSuccess
	ProgressError
	ProgressCanceled
)

// ProgressArgs is one progress report pushed by the server.
type ProgressArgs struct {
	ProgressType ProgressType `json:"progressType"`
	Percentage   float64      `json:"percentage,omitempty"`
	Message      string       `json:"message,omitempty"`
}
