package grid

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/recrovit/rgfclient/internal/models"
	"github.com/recrovit/rgfclient/internal/record"
)

// FilterProperty is an entity property that can be filtered on.
type FilterProperty struct {
	*models.Property
	Column models.FilterColumn
}

// Operators returns the operators allowed on the property.
func (p *FilterProperty) Operators() []models.QueryOperator {
	return p.Column.Operators()
}

// FilterHandler edits the condition tree of a grid.
//
// The tree is edited in place; StoreFilter snapshots it for the list
// handler. Quick filters live in a separate list and are combined with the
// user conditions by Conditions.
type FilterHandler struct {
	m      *Manager
	logger *slog.Logger

	entity         *models.Entity
	filter         *models.Filter
	properties     []*FilterProperty
	jsonConditions string
	conditions     []*models.Condition
	quickFilters   []*models.Condition
	maxClientID    int

	// PredefinedFilters are the stored filters, newest first.
	PredefinedFilters []*models.FilterSettings
}

func newFilterHandler(m *Manager, entity *models.Entity, xmlFilter, jsonConditions string, predefined []*models.FilterSettings) *FilterHandler {
	h := &FilterHandler{
		m:                 m,
		logger:            m.logger.With("handler", "filter"),
		entity:            entity,
		filter:            &models.Filter{},
		PredefinedFilters: predefined,
	}
	if xmlFilter != "" {
		if f, err := models.ParseFilter(xmlFilter); err != nil {
			h.logger.Warn("Filter", "entity", entity.EntityName, "err", err)
		} else {
			h.filter = f
		}
	}
	if !h.InitFilter(jsonConditions) {
		h.logger.Warn("InitFilter", "entity", entity.EntityName, "conditions", jsonConditions)
	}
	return h
}

// Properties returns the filterable properties ordered by title.
func (h *FilterHandler) Properties() []*FilterProperty {
	if h.properties != nil {
		return h.properties
	}
	props := []*FilterProperty{}
	for _, p := range h.entity.Properties {
		for _, c := range h.filter.Columns {
			if strings.EqualFold(p.Alias, c.Alias) {
				props = append(props, &FilterProperty{Property: p, Column: c})
			}
		}
	}
	slices.SortStableFunc(props, func(a, b *FilterProperty) int {
		return cmp.Compare(a.ColTitle, b.ColTitle)
	})
	h.properties = props
	return props
}

func (h *FilterHandler) property(id int) *FilterProperty {
	for _, p := range h.Properties() {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Conditions returns the condition tree sent to the server. With quick
// filters, user conditions and quick filters are wrapped in two brackets.
func (h *FilterHandler) Conditions() []*models.Condition {
	if len(h.quickFilters) == 0 {
		return h.conditions
	}
	return []*models.Condition{
		{LogicalOperator: models.LogicalAnd, Conditions: h.conditions},
		{LogicalOperator: models.LogicalAnd, Conditions: h.quickFilters, IsQuickFilter: true},
	}
}

// SetConditions replaces the user conditions and drops the quick filters.
func (h *FilterHandler) SetConditions(conds []*models.Condition) {
	if conds == nil {
		conds = []*models.Condition{}
	}
	h.conditions = conds
	h.quickFilters = nil
	h.maxClientID = initClientID(&models.Condition{Conditions: h.conditions}, 0)
}

// initClientID numbers the tree depth first and returns the last id used.
func initClientID(c *models.Condition, prev int) int {
	id := prev + 1
	c.ClientID = id
	for _, child := range c.Conditions {
		id = initClientID(child, id)
	}
	return id
}

func (h *FilterHandler) nextClientID() int {
	h.maxClientID++
	return h.maxClientID
}

// IsColumnFiltered reports whether a condition applies to p. A non-empty
// match also requires a quick filter on that value, ignoring case.
func (h *FilterHandler) IsColumnFiltered(p *models.Property, match string) bool {
	return h.m.List.IsFiltered() && isColumnFiltered(h.Conditions(), p.ID, match)
}

func isColumnFiltered(conds []*models.Condition, id int, match string) bool {
	for _, c := range conds {
		if c.PropertyID == id && (match == "" || c.IsQuickFilter && strings.EqualFold(match, fmt.Sprint(c.Param1))) {
			return true
		}
		if isColumnFiltered(c.Conditions, id, match) {
			return true
		}
	}
	return false
}

// SetQuickFilter sets the quick filter of p to value, or removes it when
// value is blank, then reloads the grid.
func (h *FilterHandler) SetQuickFilter(ctx context.Context, p *models.Property, value string) error {
	value = strings.TrimSpace(value)
	i := slices.IndexFunc(h.quickFilters, func(c *models.Condition) bool { return c.PropertyID == p.ID })
	switch {
	case i < 0 && value == "":
		return nil
	case value == "":
		h.quickFilters = slices.Delete(h.quickFilters, i, i+1)
	default:
		if i < 0 {
			op := models.QueryEqual
			if p.ClientDataType == record.DataTypeString {
				op = models.QueryLike
			}
			h.quickFilters = append(h.quickFilters, &models.Condition{
				ClientID:        h.nextClientID(),
				PropertyID:      p.ID,
				LogicalOperator: models.LogicalAnd,
				QueryOperator:   op,
				IsQuickFilter:   true,
			})
			i = len(h.quickFilters) - 1
		}
		h.quickFilters[i].Param1 = value
	}
	return h.m.List.SetFilter(ctx, h.StoreFilter(), h.m.List.SQLTimeout())
}

// InitFilter replaces the conditions with a JSON condition list. An empty
// string clears them. It reports false when the JSON is invalid.
func (h *FilterHandler) InitFilter(jsonConditions string) bool {
	if jsonConditions == "" {
		h.jsonConditions = ""
		h.SetConditions(nil)
		return true
	}
	var conds []*models.Condition
	if err := json.Unmarshal([]byte(jsonConditions), &conds); err != nil || conds == nil {
		return false
	}
	h.jsonConditions = jsonConditions
	h.SetConditions(conds)
	return true
}

// ResetFilter restores the conditions of the last InitFilter or
// StoreFilter.
func (h *FilterHandler) ResetFilter() bool {
	return h.InitFilter(h.jsonConditions)
}

// StoreFilter remembers the current conditions for ResetFilter and returns
// them.
func (h *FilterHandler) StoreFilter() []*models.Condition {
	conds := h.Conditions()
	if b, err := json.Marshal(conds); err != nil {
		h.logger.Warn("StoreFilter", "err", err)
	} else {
		h.jsonConditions = string(b)
	}
	return slices.Clone(conds)
}

// root wraps the conditions so edits can treat the top level like any other
// bracket.
func (h *FilterHandler) root() *models.Condition {
	return &models.Condition{Conditions: h.conditions}
}

// FindCondition returns the index of the condition with clientID inside its
// parent and the condition, or -1 and nil.
func FindCondition(conds []*models.Condition, clientID int) (int, *models.Condition) {
	for i, c := range conds {
		if c.ClientID == clientID {
			return i, c
		}
		if idx, found := FindCondition(c.Conditions, clientID); idx >= 0 {
			return idx, found
		}
	}
	return -1, nil
}

// findParent returns the bracket directly holding clientID.
func findParent(parent *models.Condition, clientID int) *models.Condition {
	for _, c := range parent.Conditions {
		if c.ClientID == clientID {
			return parent
		}
		if p := findParent(c, clientID); p != nil {
			return p
		}
	}
	return nil
}

// RemoveCondition removes the condition or bracket with clientID.
func (h *FilterHandler) RemoveCondition(clientID int) bool {
	if clientID == 0 {
		return false
	}
	root := h.root()
	parent := findParent(root, clientID)
	if parent == nil {
		return false
	}
	parent.Conditions = slices.DeleteFunc(parent.Conditions, func(c *models.Condition) bool {
		return c.ClientID == clientID
	})
	h.conditions = root.Conditions
	return true
}

// AddBracket wraps the condition with clientID in a new bracket.
func (h *FilterHandler) AddBracket(clientID int) *models.Condition {
	root := h.root()
	parent := findParent(root, clientID)
	if parent == nil {
		return nil
	}
	i := slices.IndexFunc(parent.Conditions, func(c *models.Condition) bool { return c.ClientID == clientID })
	bracket := &models.Condition{
		ClientID:        h.nextClientID(),
		LogicalOperator: models.LogicalAnd,
		Conditions:      []*models.Condition{parent.Conditions[i]},
	}
	parent.Conditions[i] = bracket
	h.conditions = root.Conditions
	return bracket
}

// RemoveBracket replaces the bracket with clientID by its conditions.
func (h *FilterHandler) RemoveBracket(clientID int) {
	if clientID == 0 {
		return
	}
	root := h.root()
	parent := findParent(root, clientID)
	if parent == nil {
		return
	}
	i := slices.IndexFunc(parent.Conditions, func(c *models.Condition) bool { return c.ClientID == clientID })
	bracket := parent.Conditions[i]
	parent.Conditions = slices.Replace(parent.Conditions, i, i+1, bracket.Conditions...)
	h.conditions = root.Conditions
}

// AddCondition appends a condition on the first filterable property to the
// bracket with clientID, or to the top level when there is no such bracket.
// It returns nil when nothing can be filtered.
func (h *FilterHandler) AddCondition(clientID int) *models.Condition {
	props := h.Properties()
	if len(props) == 0 {
		return nil
	}
	p := props[0]
	c := &models.Condition{
		ClientID:        h.nextClientID(),
		PropertyID:      p.ID,
		LogicalOperator: models.LogicalAnd,
	}
	if ops := p.Operators(); len(ops) > 0 {
		c.QueryOperator = ops[0]
	}
	c.Param1 = defaultValue(c, p)
	h.logger.Debug("AddCondition", "column", p.ColTitle)
	if _, bracket := FindCondition(h.conditions, clientID); bracket != nil && bracket.IsBracket() {
		bracket.Conditions = append(bracket.Conditions, c)
	} else {
		h.conditions = append(h.conditions, c)
	}
	return c
}

// ChangeProperty points c at another property, resetting its parameters.
func (h *FilterHandler) ChangeProperty(c *models.Condition, propertyID int) bool {
	p := h.property(propertyID)
	if p == nil || c.PropertyID == propertyID {
		return false
	}
	c.PropertyID = propertyID
	if ops := p.Operators(); !slices.Contains(ops, c.QueryOperator) && len(ops) > 0 {
		c.QueryOperator = ops[0]
	}
	c.Param1 = defaultValue(c, p)
	c.Param2 = nil
	return true
}

// ChangeQueryOperator switches the operator of c when the property allows
// it. Parameters the new operator does not take are cleared.
func (h *FilterHandler) ChangeQueryOperator(c *models.Condition, op models.QueryOperator) bool {
	if op == models.QueryInvalid || op == c.QueryOperator {
		return false
	}
	p := h.property(c.PropertyID)
	if p == nil || !slices.Contains(p.Operators(), op) {
		return false
	}
	if op.IsNullCheck() {
		c.Param1 = nil
	}
	if !op.IsInterval() || !c.QueryOperator.IsInterval() {
		c.Param2 = nil
	}
	c.QueryOperator = op
	if c.Param1 == nil {
		c.Param1 = defaultValue(c, p)
	}
	h.logger.Debug("ChangeQueryOperator", "op", op)
	return true
}

func defaultValue(c *models.Condition, p *FilterProperty) any {
	switch p.ClientDataType {
	case record.DataTypeString:
		switch c.QueryOperator {
		case models.QueryEqual, models.QueryNotEqual, models.QueryLike, models.QueryNotLike,
			models.QueryInterval, models.QueryIntervalE:
			return ""
		}
	case record.DataTypeBoolean:
		return false
	case record.DataTypeDateTime:
		y, m, d := time.Now().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	}
	return nil
}

// SetFilter replaces the conditions and reloads the grid.
func (h *FilterHandler) SetFilter(ctx context.Context, conds []*models.Condition, sqlTimeout *int) error {
	h.SetConditions(conds)
	return h.m.List.SetFilter(ctx, slices.Clone(h.Conditions()), sqlTimeout)
}

// SelectPredefinedFilter loads a copy of the stored filter with id. It
// returns nil when there is no such filter.
func (h *FilterHandler) SelectPredefinedFilter(id int) (*models.FilterSettings, error) {
	i := slices.IndexFunc(h.PredefinedFilters, func(f *models.FilterSettings) bool { return f.ID() == id })
	if i < 0 {
		return nil, nil
	}
	f, err := h.PredefinedFilters[i].Clone()
	if err != nil {
		return nil, err
	}
	h.SetConditions(f.Conditions)
	return f, nil
}

// SaveFilterSettings stores the current conditions under f. An unnamed
// filter is not saved.
func (h *FilterHandler) SaveFilterSettings(ctx context.Context, f *models.FilterSettings) (bool, error) {
	if strings.TrimSpace(f.SettingsName) == "" {
		return false, nil
	}
	f.Conditions = slices.Clone(h.Conditions())
	res := h.m.SaveFilterSettings(ctx, f)
	if res == nil {
		return false, nil
	}
	if !res.Success {
		h.m.BroadcastMessages(ctx, res.Messages, h)
		return false, nil
	}
	if f.ID() == 0 && res.Result != nil {
		id := res.Result.FilterSettingsID
		f.FilterSettingsID = &id
	}
	saved, err := f.Clone()
	if err != nil {
		return false, err
	}
	filters := slices.DeleteFunc(slices.Clone(h.PredefinedFilters), func(e *models.FilterSettings) bool {
		return e.ID() == f.ID()
	})
	h.PredefinedFilters = append([]*models.FilterSettings{saved}, filters...)
	return true, nil
}

// DeleteFilterSettings removes the stored filter with id.
func (h *FilterHandler) DeleteFilterSettings(ctx context.Context, id int) bool {
	if !h.m.DeleteFilterSettings(ctx, id) {
		return false
	}
	h.PredefinedFilters = slices.DeleteFunc(slices.Clone(h.PredefinedFilters), func(e *models.FilterSettings) bool {
		return e.ID() == id
	})
	return true
}
