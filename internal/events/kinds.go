package events

import (
	"context"

	"github.com/recrovit/rgfclient/internal/models"
	"github.com/recrovit/rgfclient/internal/record"
)

// ToolbarAction is a grid toolbar command.
type ToolbarAction int

const (
	ToolbarInvalid ToolbarAction = iota
	ToolbarRefresh
	ToolbarShowFilter
	ToolbarAdd
	ToolbarEdit
	ToolbarRead
	ToolbarDelete
	ToolbarSelect
	ToolbarColumnSettings
	ToolbarSaveSettings
	ToolbarResetSettings
	ToolbarEntityEditor
	ToolbarRecroTrack
	ToolbarQueryString
	ToolbarQuickWatch
	ToolbarExportCsv
	ToolbarRgfAbout
)

var toolbarNames = [...]string{
	"Invalid", "Refresh", "ShowFilter", "Add", "Edit", "Read", "Delete", "Select",
	"ColumnSettings", "SaveSettings", "ResetSettings",
	"EntityEditor", "RecroTrack", "QueryString", "QuickWatch", "ExportCsv",
	"RgfAbout",
}

func (a ToolbarAction) String() string {
	if a < 0 || int(a) >= len(toolbarNames) {
		return "Invalid"
	}
	return toolbarNames[a]
}

// ParseToolbarAction returns the action named s, or ToolbarInvalid.
func ParseToolbarAction(s string) ToolbarAction {
	for i, n := range toolbarNames {
		if n == s {
			return ToolbarAction(i)
		}
	}
	return ToolbarInvalid
}

// ToolbarArgs are the arguments of a toolbar event.
type ToolbarArgs struct {
	Action ToolbarAction

	// Data is the row the command applies to, if any.
	Data *record.Record
}

// ToolbarDispatcher routes toolbar commands.
type ToolbarDispatcher = Dispatcher[ToolbarAction, ToolbarArgs]

// ListEventKind is a change of the rows shown by a grid.
type ListEventKind int

const (
	ListRefreshRow ListEventKind = iota
	ListAddRow
	ListDeleteRow
	ListCreateRowData
	ListColumnSettingsChanged
)

func (k ListEventKind) String() string {
	switch k {
	case ListRefreshRow:
		return "RefreshRow"
	case ListAddRow:
		return "AddRow"
	case ListDeleteRow:
		return "DeleteRow"
	case ListCreateRowData:
		return "CreateRowData"
	case ListColumnSettingsChanged:
		return "ColumnSettingsChanged"
	default:
		return "Unknown"
	}
}

// ListArgs are the arguments of a list event.
type ListArgs struct {
	Kind       ListEventKind
	Data       *record.Record
	Properties []*models.Property
}

// NewListArgs builds the arguments for the first row of a grid result. It
// returns false when the result holds no row.
func NewListArgs(kind ListEventKind, g *models.GridResult) (ListArgs, bool) {
	if g == nil || g.DataColumns == nil || len(g.Data) == 0 {
		return ListArgs{}, false
	}
	args := ListArgs{Kind: kind, Data: g.Record(0)}
	if g.EntityDesc != nil {
		args.Properties = g.EntityDesc.Properties
	}
	return args, true
}

// ListDispatcher routes list events.
type ListDispatcher = Dispatcher[ListEventKind, ListArgs]

// FormEventKind is a step of the form life cycle.
type FormEventKind int

const (
	FormDataInitialized FormEventKind = iota + 1
	FormRendered
	FormValidationRequested
	FormEntitySearch
	FormEntityDisplay
	FormParametersSet
	FormSaveStarted
	FormItemsFirstRenderCompleted
)

// FormArgs are the arguments of a form event.
type FormArgs struct {
	Kind        FormEventKind
	Property    *models.FormProperty
	SelectParam *models.SelectParam
	FirstRender bool
	Close       bool
}

// FormDispatcher routes form events.
type FormDispatcher = Dispatcher[FormEventKind, FormArgs]

// EntityEventKind is a step of the grid manager life cycle.
type EntityEventKind int

const (
	EntityInitialized EntityEventKind = iota + 1
	EntityDestroy
)

// EntityManager is the grid manager an entity event refers to.
type EntityManager interface {
	EntityName() string
}

// EntityArgs are the arguments of an entity event.
type EntityArgs struct {
	Kind    EntityEventKind
	Manager EntityManager
}

// EntityDispatcher routes entity events.
type EntityDispatcher = Dispatcher[EntityEventKind, EntityArgs]

// DialogEventKind is a step of the dialog life cycle.
type DialogEventKind int

const (
	DialogInitialized DialogEventKind = iota + 1
	DialogClose
	DialogDestroy
	DialogRefresh
	DialogRendered
)

// DialogArgs are the arguments of a dialog event.
type DialogArgs struct {
	Kind        DialogEventKind
	FirstRender bool
}

// ChartEventKind is a chart request.
type ChartEventKind int

const (
	ChartShow ChartEventKind = iota
)

// ChartArgs are the arguments of a chart event.
type ChartArgs struct {
	Kind ChartEventKind
}

// MenuArgs are the arguments of a menu event. Menu events are keyed by
// command.
type MenuArgs struct {
	Command   string
	MenuType  string
	EntityKey *models.EntityKey
	Data      *record.Record
}

// MenuDispatcher routes menu commands.
type MenuDispatcher = Dispatcher[string, MenuArgs]

// CreateGridRequestArgs lets subscribers amend a grid request before it is
// sent.
type CreateGridRequestArgs struct {
	Request *models.GridRequest
}

// Menu commands that map to toolbar actions.
const (
	MenuColumnSettings = "RGF.Menu.ColumnSettings"
	MenuSaveSettings   = "RGF.Menu.SaveSettings"
	MenuResetSettings  = "RGF.Menu.ResetSettings"
	MenuRecroTrack     = "RGF.Menu.RecroTrack"
	MenuQueryString    = "RGF.Menu.QueryString"
	MenuQuickWatch     = "RGF.Menu.QuickWatch"
	MenuExportCsv      = "RGF.Menu.ExportCsv"
	MenuRgfAbout       = "RGF.Menu.RgfAbout"
	MenuEntityEditor   = "RGF.Menu.EntityEditor"
)

var menuToolbar = map[string]ToolbarAction{
	MenuColumnSettings: ToolbarColumnSettings,
	MenuSaveSettings:   ToolbarSaveSettings,
	MenuResetSettings:  ToolbarResetSettings,
	MenuRecroTrack:     ToolbarRecroTrack,
	MenuQueryString:    ToolbarQueryString,
	MenuQuickWatch:     ToolbarQuickWatch,
	MenuExportCsv:      ToolbarExportCsv,
	MenuRgfAbout:       ToolbarRgfAbout,
	MenuEntityEditor:   ToolbarEntityEditor,
}

// MenuCommandToToolbarAction maps a menu command to the toolbar action it
// triggers, or ToolbarInvalid.
func MenuCommandToToolbarAction(command string) ToolbarAction {
	return menuToolbar[command]
}

// ForwardMenuToToolbar subscribes receiver to the menu commands that have a
// toolbar equivalent and re-raises them on toolbar.
func ForwardMenuToToolbar(menu *MenuDispatcher, toolbar *ToolbarDispatcher, receiver any) *Subscription {
	return menu.SubscribeAllAsync(receiver, func(ctx context.Context, e *Event[MenuArgs]) error {
		action := MenuCommandToToolbarAction(e.Args.Command)
		if action == ToolbarInvalid {
			return nil
		}
		handled, err := toolbar.Raise(ctx, action, e.Sender, ToolbarArgs{Action: action, Data: e.Args.Data})
		e.Handled = e.Handled || handled
		return err
	})
}
