package models

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/tiendc/go-deepcopy"
)

// QueryOperator is the comparison of a filter condition.
type QueryOperator int

const (
	QueryInvalid QueryOperator = iota
	QueryEqual
	QueryNotEqual
	QueryLike
	QueryNotLike
	QueryLess
	QueryLessOrEqual
	QueryGreater
	QueryGreaterOrEqual
	QueryIsNull
	QueryIsNotNull
	QueryInterval
	QueryIntervalE
	QueryIn
	QueryNotIn
	QueryExists
	QueryNotExists
)

var queryOperatorNames = [...]string{
	"Invalid", "Equal", "NotEqual", "Like", "NotLike", "Less", "LessOrEqual",
	"Greater", "GreaterOrEqual", "IsNull", "IsNotNull", "Interval", "IntervalE",
	"In", "NotIn", "Exists", "NotExists",
}

func (q QueryOperator) String() string {
	if q < 0 || int(q) >= len(queryOperatorNames) {
		return queryOperatorNames[0]
	}
	return queryOperatorNames[q]
}

// ParseQueryOperator returns the operator named s, ignoring case.
func ParseQueryOperator(s string) QueryOperator {
	for i, n := range queryOperatorNames {
		if strings.EqualFold(n, s) {
			return QueryOperator(i)
		}
	}
	return QueryInvalid
}

// IsInterval reports whether the operator takes two parameters.
func (q QueryOperator) IsInterval() bool {
	return q == QueryInterval || q == QueryIntervalE
}

// IsNullCheck reports whether the operator takes no parameter.
func (q QueryOperator) IsNullCheck() bool {
	return q == QueryIsNull || q == QueryIsNotNull
}

// LogicalOperator joins a condition to its preceding sibling.
type LogicalOperator int

const (
	LogicalAnd LogicalOperator = iota
	LogicalOr
)

func (l LogicalOperator) String() string {
	if l == LogicalOr {
		return "Or"
	}
	return "And"
}

// Condition is a node of the filter tree. A condition with a non-nil
// Conditions slice is a bracket.
type Condition struct {
	ClientID        int             `json:"clientId"`
	PropertyID      int             `json:"propertyId"`
	LogicalOperator LogicalOperator `json:"logicalOperator"`
	QueryOperator   QueryOperator   `json:"queryOperator"`
	Param1          any             `json:"param1"`
	Param2          any             `json:"param2"`
	IsQuickFilter   bool            `json:"isQuickFilter,omitempty"`
	Conditions      []*Condition    `json:"conditions,omitempty"`
}

// IsBracket reports whether c groups other conditions.
func (c *Condition) IsBracket() bool {
	return c.Conditions != nil
}

// CloneConditions returns a deep copy of a condition tree.
func CloneConditions(conds []*Condition) ([]*Condition, error) {
	if conds == nil {
		return nil, nil
	}
	var out []*Condition
	if err := deepcopy.Copy(&out, &conds); err != nil {
		return nil, fmt.Errorf("failed to copy conditions: %w", err)
	}
	return out, nil
}

// FilterSettings is a named, stored filter.
type FilterSettings struct {
	FilterSettingsID *int         `json:"filterSettingsId,omitempty"`
	SettingsName     string       `json:"settingsName"`
	RoleID           *string      `json:"roleId,omitempty"`
	SQLTimeout       *int         `json:"sqlTimeout,omitempty"`
	Conditions       []*Condition `json:"conditions"`
}

// Clone returns a deep copy of f.
func (f *FilterSettings) Clone() (*FilterSettings, error) {
	out := &FilterSettings{}
	if err := deepcopy.Copy(out, f); err != nil {
		return nil, fmt.Errorf("failed to copy filter settings: %w", err)
	}
	return out, nil
}

// ID returns the settings id, or 0 when unsaved.
func (f *FilterSettings) ID() int {
	if f.FilterSettingsID == nil {
		return 0
	}
	return *f.FilterSettingsID
}

// Filter is the server's description of the filterable columns of an
// entity:
//
//	<RgfFilter>
//	  <Column Alias="Status" Operators="Equal,NotEqual,In">
//	    <Item Key="1" Value="Open"/>
//	  </Column>
//	</RgfFilter>
type Filter struct {
	XMLName xml.Name       `xml:"RgfFilter"`
	Columns []FilterColumn `xml:"Column"`
}

// FilterColumn lists the operators and dictionary items allowed on one
// column.
type FilterColumn struct {
	Alias        string           `xml:"Alias,attr"`
	OperatorList string           `xml:"Operators,attr"`
	Dictionary   []DictionaryItem `xml:"Item"`
}

// DictionaryItem is a selectable value of a filter column.
type DictionaryItem struct {
	Key   string `xml:"Key,attr" json:"key"`
	Value string `xml:"Value,attr" json:"value"`
}

// Operators returns the allowed operators in declaration order. Unknown
// names are skipped.
func (c *FilterColumn) Operators() []QueryOperator {
	var ops []QueryOperator
	for _, s := range strings.Split(c.OperatorList, ",") {
		if op := ParseQueryOperator(strings.TrimSpace(s)); op != QueryInvalid {
			ops = append(ops, op)
		}
	}
	return ops
}

// ParseFilter decodes the filter XML document.
func ParseFilter(data string) (*Filter, error) {
	f := &Filter{}
	if err := xml.Unmarshal([]byte(data), f); err != nil {
		return nil, fmt.Errorf("failed to parse filter: %w", err)
	}
	return f, nil
}
