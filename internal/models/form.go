package models

import (
	"encoding/xml"
	"fmt"
	"slices"
)

// Form is the layout of the edit form of one entity row:
//
//	<RgfForm>
//	  <Tab Index="0" Title="General">
//	    <Group Index="0" Title="Main">
//	      <Property Id="3" Alias="Name" Label="Name">
//	        <Value>Widget</Value>
//	        <Item Key="1" Value="One"/>
//	        <ForeignEntity>
//	          <EntityKey Key="7" Foreign="8" Value="42"/>
//	        </ForeignEntity>
//	      </Property>
//	    </Group>
//	  </Tab>
//	</RgfForm>
//
// A Property without a Value element has no original value.
type Form struct {
	XMLName xml.Name   `xml:"RgfForm"`
	Tabs    []*FormTab `xml:"Tab"`
}

// FormTab is a page of the form.
type FormTab struct {
	Index  int          `xml:"Index,attr"`
	Title  string       `xml:"Title,attr"`
	Groups []*FormGroup `xml:"Group"`
}

// FormGroup is a box of properties on a tab.
type FormGroup struct {
	Index      int             `xml:"Index,attr"`
	Title      string          `xml:"Title,attr"`
	Properties []*FormProperty `xml:"Property"`

	// FlexColumnWidth is the layout width, 1 to 12, assigned by the form
	// handler.
	FlexColumnWidth int `xml:"-"`
}

// FormProperty is one editable field.
type FormProperty struct {
	ID             int              `xml:"Id,attr"`
	Alias          string           `xml:"Alias,attr"`
	Label          string           `xml:"Label,attr"`
	OrigValue      *string          `xml:"Value"`
	AvailableItems []DictionaryItem `xml:"Item"`
	ForeignEntity  *ForeignEntity   `xml:"ForeignEntity"`

	// FlexColumnWidth overrides the group width when set.
	FlexColumnWidth *int `xml:"-"`
}

// HasAvailableItem reports whether key is one of the selectable items.
func (p *FormProperty) HasAvailableItem(key string) bool {
	return slices.ContainsFunc(p.AvailableItems, func(i DictionaryItem) bool { return i.Key == key })
}

// ForeignEntity links a form property to another entity.
type ForeignEntity struct {
	EntityKeys []ForeignKey `xml:"EntityKey"`
}

// ForeignKey maps a key property of the foreign entity to the local
// property holding it.
type ForeignKey struct {
	Key     int    `xml:"Key,attr"`
	Foreign int    `xml:"Foreign,attr"`
	Value   string `xml:"Value,attr"`
}

// FirstKey returns the first foreign key, if any.
func (f *ForeignEntity) FirstKey() (ForeignKey, bool) {
	if f == nil || len(f.EntityKeys) == 0 {
		return ForeignKey{}, false
	}
	return f.EntityKeys[0], true
}

// AllProperties returns every property of every group in layout order.
func (f *Form) AllProperties() []*FormProperty {
	var props []*FormProperty
	for _, t := range f.Tabs {
		for _, g := range t.Groups {
			props = append(props, g.Properties...)
		}
	}
	return props
}

// PropertyByID returns the form property with the given id.
func (f *Form) PropertyByID(id int) *FormProperty {
	for _, p := range f.AllProperties() {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ParseForm decodes the form XML document.
func ParseForm(data string) (*Form, error) {
	if data == "" {
		return nil, fmt.Errorf("failed to parse form: empty document")
	}
	f := &Form{}
	if err := xml.Unmarshal([]byte(data), f); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	return f, nil
}
