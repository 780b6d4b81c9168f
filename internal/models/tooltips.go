package models

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// PropertyTooltips are the help texts of the properties of an entity:
//
//	<RgfPropertyTooltips EntityId="12">
//	  <Property Id="3">Name of the product</Property>
//	</RgfPropertyTooltips>
type PropertyTooltips struct {
	XMLName  xml.Name          `xml:"RgfPropertyTooltips"`
	EntityID int               `xml:"EntityId,attr"`
	Items    []PropertyTooltip `xml:"Property"`
}

// PropertyTooltip is the help text of one property.
type PropertyTooltip struct {
	PropertyID int    `xml:"Id,attr"`
	Text       string `xml:",chardata"`
}

// Tooltip returns the trimmed help text of a property, or "".
func (t *PropertyTooltips) Tooltip(propertyID int) string {
	if t == nil {
		return ""
	}
	for _, i := range t.Items {
		if i.PropertyID == propertyID {
			return strings.TrimSpace(i.Text)
		}
	}
	return ""
}

// ParsePropertyTooltips decodes the tooltip XML document.
func ParsePropertyTooltips(data string) (*PropertyTooltips, error) {
	t := &PropertyTooltips{}
	if err := xml.Unmarshal([]byte(data), t); err != nil {
		return nil, fmt.Errorf("failed to parse property tooltips: %w", err)
	}
	return t, nil
}
