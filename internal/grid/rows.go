// Row index conversions between the absolute result set and the active page.

package grid

import (
	"maps"
	"slices"

	"github.com/recrovit/rgfclient/internal/models"
	"github.com/recrovit/rgfclient/internal/pagecache"
	"github.com/recrovit/rgfclient/internal/record"
)

// ToRelativeRowIndex returns the position of the absolute row on the active
// page, or -1.
func (h *ListHandler) ToRelativeRowIndex(absolute int) int {
	return pagecache.ToRelative(absolute, h.ActivePage.Value(), h.PageSize.Value())
}

// ToAbsoluteRowIndex returns the absolute index of a position on the active
// page. Negative positions are returned unchanged.
func (h *ListHandler) ToAbsoluteRowIndex(relative int) int {
	return pagecache.ToAbsolute(relative, h.ActivePage.Value(), h.PageSize.Value())
}

// AbsoluteRowIndex returns the absolute index recorded in the row
// parameters, or -1.
func AbsoluteRowIndex(row *record.Record) int {
	if row == nil {
		return -1
	}
	v, ok := row.Params().Get("rowIndex")
	if !ok {
		return -1
	}
	i, ok := v.Int64()
	if !ok {
		return -1
	}
	return int(i)
}

// RelativeRowIndex returns the position of row on the active page, or -1.
func (h *ListHandler) RelativeRowIndex(row *record.Record) int {
	return h.ToRelativeRowIndex(AbsoluteRowIndex(row))
}

// RowIndexAndKey returns the absolute index and the key of row. The key is
// empty when the row has no signature.
func (h *ListHandler) RowIndexAndKey(row *record.Record) (int, *models.EntityKey) {
	key, ok := h.EntityKey(row)
	if !ok {
		key = &models.EntityKey{Keys: record.New()}
	}
	return AbsoluteRowIndex(row), key
}

// SelectedRowsData returns the loaded rows of the selection in row order.
func (h *ListHandler) SelectedRowsData(selected map[int]*models.EntityKey) []*record.Record {
	var rows []*record.Record
	for _, i := range sortedRows(selected) {
		if row := h.RowData(i); row != nil {
			rows = append(rows, row)
		}
	}
	return rows
}

func sortedRows(selected map[int]*models.EntityKey) []int {
	return slices.Sorted(maps.Keys(selected))
}
