// Package models defines the data structures exchanged with the RecroGrid
// server.
package models

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/recrovit/rgfclient/internal/record"
)

// PropertyFormType is the editor used for a property on the form view.
type PropertyFormType int

const (
	FormTypeUndefined PropertyFormType = iota
	FormTypeTextBox
	FormTypeTextBoxMultiLine
	FormTypeCheckBox
	FormTypeDropDown
	FormTypeDatePicker
	FormTypeHTMLEditor
	FormTypeImageInDB
	FormTypeRecroGrid
	FormTypeEntityEditor
)

// PropertyListType is how a property is rendered in the grid.
type PropertyListType int

const (
	ListTypeUndefined PropertyListType = iota
	ListTypeString
	ListTypeNumeric
	ListTypeCheckBox
	ListTypeImage
	ListTypeRecroGrid
)

// Options holds the RGO_* settings of an entity, a property or a grid
// result. Values keep their decoded JSON type.
type Options map[string]any

// String returns the option formatted as a string, or "" when absent.
func (o Options) String(key string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return ""
	}
	return record.ValueOf(v).String()
}

// Bool returns the option as a boolean. "true", "True" and non-zero numbers
// are true.
func (o Options) Bool(key string) bool {
	v, ok := o[key]
	if !ok {
		return false
	}
	b, _ := record.Coerce(v, record.DataTypeBoolean).BoolValue()
	return b
}

// IntOK returns the option as an int and whether it was present and numeric.
func (o Options) IntOK(key string) (int, bool) {
	i, ok := o.int64OK(key)
	if !ok || i < math.MinInt32 || i > math.MaxInt32 {
		return 0, false
	}
	return int(i), true
}

// Int returns the option as an int, or def.
func (o Options) Int(key string, def int) int {
	if i, ok := o.IntOK(key); ok {
		return i
	}
	return def
}

// Int64 returns the option as an int64, or def.
func (o Options) Int64(key string, def int64) int64 {
	if i, ok := o.int64OK(key); ok {
		return i
	}
	return def
}

func (o Options) int64OK(key string) (int64, bool) {
	v, ok := o[key]
	if !ok || v == nil {
		return 0, false
	}
	return record.Coerce(v, record.DataTypeInteger).Int64()
}

// Has reports whether the option is set.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Property describes a column of an entity.
type Property struct {
	ID                    int              `json:"id"`
	Alias                 string           `json:"alias"`
	ClientName            string           `json:"clientName"`
	BaseEntityNameVersion string           `json:"baseEntityNameVersion,omitempty"`
	ColTitle              string           `json:"colTitle"`
	ColPos                int              `json:"colPos"`
	ColWidth              int              `json:"colWidth"`
	Sort                  int              `json:"sort"`
	IsKey                 bool             `json:"isKey"`
	Editable              bool             `json:"editable"`
	Required              bool             `json:"required"`
	Readable              bool             `json:"readable"`
	Orderable             bool             `json:"orderable"`
	ClientDataType        record.DataType  `json:"clientDataType"`
	FormType              PropertyFormType `json:"formType"`
	ListType              PropertyListType `json:"listType"`
	Ex                    string           `json:"ex,omitempty"`
	Options               Options          `json:"options,omitempty"`
}

// Entity is the grid metadata of an entity, as returned with the first page.
type Entity struct {
	EntityID     int         `json:"entityId"`
	EntityName   string      `json:"entityName"`
	NameVersion  string      `json:"nameVersion"`
	Title        string      `json:"title"`
	MenuTitle    string      `json:"menuTitle"`
	ItemsPerPage int         `json:"itemsPerPage"`
	CRUD         string      `json:"crud"`
	Properties   []*Property `json:"properties"`
	Options      Options     `json:"options,omitempty"`
}

// SortedVisibleColumns returns the properties shown in the grid ordered by
// column position.
func (e *Entity) SortedVisibleColumns() []*Property {
	var cols []*Property
	for _, p := range e.Properties {
		if p.ColPos > 0 {
			cols = append(cols, p)
		}
	}
	slices.SortStableFunc(cols, func(a, b *Property) int {
		return cmp.Compare(a.ColPos, b.ColPos)
	})
	return cols
}

// SortColumns returns the properties the grid is sorted by, in sort
// priority order. The sign of Sort gives the direction.
func (e *Entity) SortColumns() []*Property {
	var cols []*Property
	for _, p := range e.Properties {
		if p.Sort != 0 {
			cols = append(cols, p)
		}
	}
	slices.SortStableFunc(cols, func(a, b *Property) int {
		return cmp.Compare(abs(a.Sort), abs(b.Sort))
	})
	return cols
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// PropertyByID returns the property with the given id.
func (e *Entity) PropertyByID(id int) *Property {
	for _, p := range e.Properties {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PropertyByAlias returns the property with the given alias, ignoring case.
func (e *Entity) PropertyByAlias(alias string) *Property {
	for _, p := range e.Properties {
		if strings.EqualFold(p.Alias, alias) {
			return p
		}
	}
	return nil
}

// KeyProperties returns the properties that form the entity key.
func (e *Entity) KeyProperties() []*Property {
	var keys []*Property
	for _, p := range e.Properties {
		if p.IsKey {
			keys = append(keys, p)
		}
	}
	return keys
}

// DataTypes maps client names and aliases to their data type, for
// record.FromRow.
func (e *Entity) DataTypes() map[string]record.DataType {
	types := make(map[string]record.DataType, 2*len(e.Properties))
	for _, p := range e.Properties {
		if p.ClientName != "" {
			types[p.ClientName] = p.ClientDataType
		}
		if p.Alias != "" {
			types[p.Alias] = p.ClientDataType
		}
	}
	return types
}

// Permissions is the set of basic operations allowed on an entity.
type Permissions struct {
	Add    bool `json:"add"`
	Read   bool `json:"read"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

// ParsePermissions decodes a CRUD letter string such as "CRUD" or "R".
// Letters are case-insensitive; anything else is ignored.
func ParsePermissions(crud string) Permissions {
	var p Permissions
	for _, c := range strings.ToUpper(crud) {
		switch c {
		case 'C':
			p.Add = true
		case 'R':
			p.Read = true
		case 'U':
			p.Edit = true
		case 'D':
			p.Delete = true
		}
	}
	return p
}

func (p Permissions) String() string {
	var b strings.Builder
	for _, f := range []struct {
		ok bool
		c  byte
	}{{p.Add, 'C'}, {p.Read, 'R'}, {p.Edit, 'U'}, {p.Delete, 'D'}} {
		if f.ok {
			b.WriteByte(f.c)
		}
	}
	return b.String()
}

// ClientVersionHeader is the request header carrying the client version.
const ClientVersionHeader = "RGF-Client-Version"

// CoreVersionKey is the key of the server version in the
// version-compatibility response.
const CoreVersionKey = "RGF-Core-Version"

// FormatColumnKey returns the form data key used for a foreign key column
// that is not part of the entity key.
func FormatColumnKey(propertyID int) string {
	return "rg-col-" + strconv.Itoa(propertyID)
}
