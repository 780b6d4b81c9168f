package grid

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/recrovit/rgfclient/internal/events"
	"github.com/recrovit/rgfclient/internal/models"
	"github.com/recrovit/rgfclient/internal/record"
)

const defaultFlexColumnWidth = 6

// FormViewData is a form being edited: the layout and the current values
// keyed by alias.
type FormViewData struct {
	Tabs          []*models.FormTab
	Data          *record.Record
	EntityKey     *models.EntityKey
	StyleSheetURL string
}

// IsNewEntry reports whether the form creates a row.
func (d *FormViewData) IsNewEntry() bool {
	return d.EntityKey.IsEmpty()
}

func (d *FormViewData) property(id int) *models.FormProperty {
	for _, t := range d.Tabs {
		for _, g := range t.Groups {
			for _, p := range g.Properties {
				if p.ID == id {
					return p
				}
			}
		}
	}
	return nil
}

// FormHandler loads, diffs and saves the edit form of one row.
type FormHandler struct {
	m      *Manager
	logger *slog.Logger
}

// Initialize fetches the form of the row with key, or of a new row when key
// is empty.
func (h *FormHandler) Initialize(ctx context.Context, key *models.EntityKey) *models.Result[*models.FormResult] {
	req := h.m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		r.EntityName = h.m.Entity().EntityName
		if !key.IsEmpty() {
			r.EntityKey = key
		}
	})
	res := h.m.Form(ctx, req)
	if res != nil && (res.Success || res.Messages != nil) {
		h.m.BroadcastMessages(ctx, res.Messages, h)
	}
	return res
}

// InitFormData parses the form of res and seeds its values. It returns nil
// when the form cannot be parsed.
func (h *FormHandler) InitFormData(res *models.FormResult) *FormViewData {
	if res == nil || res.XMLForm == "" {
		return nil
	}
	form, err := models.ParseForm(res.XMLForm)
	if err != nil {
		h.logger.Warn("InitFormData", "err", err)
		return nil
	}
	entity := h.m.Entity()
	isNew := res.EntityKey.IsEmpty()
	h.setFlexWidths(entity, form)

	data := record.New()
	for _, p := range form.AllProperties() {
		desc := entity.PropertyByID(p.ID)
		if desc != nil {
			if w, ok := desc.Options.IntOK("RGO_FormFlexColumnWidth"); ok {
				p.FlexColumnWidth = &w
			}
		}
		if p.Alias == "" {
			h.logger.Warn("InitFormData", "msg", "property without alias", "entity", entity.NameVersion, "id", p.ID)
			continue
		}
		data.Set(p.Alias, formValue(desc, p.OrigValue))
		h.logger.Debug("InitFormData", "id", p.ID, "alias", p.Alias, "value", p.OrigValue)
		if isNew {
			if p.OrigValue != nil && !p.HasAvailableItem(*p.OrigValue) {
				p.OrigValue = nil
			}
		} else if fk, ok := p.ForeignEntity.FirstKey(); ok {
			if kp := entity.PropertyByID(fk.Key); kp == nil || !kp.IsKey {
				data.Set(models.FormatColumnKey(fk.Key), fk.Value)
			}
		}
	}
	for _, p := range entity.Properties {
		if p.FormType == models.FormTypeCheckBox && p.Editable && p.Required && data.Value(p.Alias).IsNull() {
			data.Set(p.Alias, "False")
		}
	}
	return &FormViewData{
		Tabs:          form.Tabs,
		Data:          data,
		EntityKey:     res.EntityKey,
		StyleSheetURL: res.StyleSheetURL,
	}
}

// setFlexWidths assigns the group widths: the group option wins over the
// tab option, which wins over the entity option. A lone wide editor fills
// the row.
func (h *FormHandler) setFlexWidths(entity *models.Entity, form *models.Form) {
	entityWidth := entity.Options.Int("RGO_FormFlexColumnWidth", defaultFlexColumnWidth)
	for _, t := range form.Tabs {
		tabKey := "RGO_FormFlexColumnWidth-" + strconv.Itoa(t.Index)
		tabWidth, tabOK := entity.Options.IntOK(tabKey)
		for _, g := range t.Groups {
			if w, ok := entity.Options.IntOK(tabKey + "-" + strconv.Itoa(g.Index)); ok {
				g.FlexColumnWidth = w
				continue
			}
			g.FlexColumnWidth = entityWidth
			if tabOK {
				g.FlexColumnWidth = tabWidth
			}
			if len(g.Properties) != 1 {
				continue
			}
			desc := entity.PropertyByID(g.Properties[0].ID)
			if desc == nil || desc.Options.Has("RGO_FormFlexColumnWidth") {
				continue
			}
			switch desc.FormType {
			case models.FormTypeTextBoxMultiLine, models.FormTypeHTMLEditor, models.FormTypeRecroGrid:
				g.FlexColumnWidth = 12
			}
		}
	}
}

func formValue(desc *models.Property, v *string) record.Value {
	if v == nil {
		return record.Null
	}
	if desc == nil {
		return record.String(*v)
	}
	return record.Coerce(*v, desc.ClientDataType)
}

// CollectChangedFormData returns the values that differ from the loaded
// form, keyed by client name. Grid and image properties are never sent. A
// foreign display value is skipped when its key column is set.
func (h *FormHandler) CollectChangedFormData(d *FormViewData) *record.Record {
	entity := h.m.Entity()
	changes := record.New()
	for name, cur := range d.Data.All() {
		desc := entity.PropertyByAlias(name)
		if desc == nil || desc.FormType == models.FormTypeRecroGrid || desc.FormType == models.FormTypeImageInDB {
			continue
		}
		cur = record.Coerce(cur, desc.ClientDataType)
		orig := d.property(desc.ID)
		if orig == nil {
			if !cur.IsNull() {
				changes.Set(desc.ClientName, cur.String())
			}
			continue
		}
		if fk, ok := orig.ForeignEntity.FirstKey(); ok {
			if kp := entity.PropertyByID(fk.Foreign); kp != nil && !d.Data.Value(kp.Alias).IsNull() {
				h.logger.Debug("CollectChangedFormData", "skip", name)
				continue
			}
		}
		if !formValue(desc, orig.OrigValue).Equal(cur) {
			h.logger.Debug("CollectChangedFormData", "name", name, "new", cur, "orig", orig.OrigValue)
			changes.Set(desc.ClientName, cur.String())
		}
	}
	return changes
}

// IsModified reports whether p differs from its loaded value. A property
// missing from the form counts as modified.
func (h *FormHandler) IsModified(d *FormViewData, p *models.FormProperty) bool {
	orig := d.property(p.ID)
	if orig == nil {
		return true
	}
	desc := h.m.Entity().PropertyByID(p.ID)
	cur := d.Data.Value(p.Alias)
	if desc != nil {
		cur = record.Coerce(cur, desc.ClientDataType)
	}
	return !formValue(desc, orig.OrigValue).Equal(cur)
}

// Save sends the changed values. An unchanged existing row succeeds
// without a request; an unchanged new row fails. On success the saved row
// is added to or refreshed in the list.
func (h *FormHandler) Save(ctx context.Context, d *FormViewData, refresh bool) (*models.Result[*models.FormResult], error) {
	h.logger.DebugContext(ctx, "Save")
	req := h.m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		r.EntityName = h.m.Entity().EntityName
		r.EntityKey = d.EntityKey
		r.Skeleton = refresh
	})
	isNew := req.EntityKey.IsEmpty()
	req.Data = h.CollectChangedFormData(d)
	if req.Data.Len() == 0 {
		return &models.Result[*models.FormResult]{Success: !isNew}, nil
	}
	dict := h.m.dict
	t := events.NewActionToast(dict.UIString("Request"), h.m.Entity().Title, dict.UIString("Save"), "", events.ToastDefault)
	h.m.toast(ctx, t, h)
	res := h.m.UpdateFormData(ctx, req)
	if res == nil || !res.Success || res.Result == nil || res.Result.GridResult == nil {
		if res != nil {
			h.m.BroadcastMessages(ctx, res.Messages, h)
		}
		h.m.toast(ctx, t.Remove(), h)
		return res, nil
	}
	h.m.toast(ctx, t.RecreateAsSuccess(dict.UIString("Processed")), h)
	g := res.Result.GridResult
	if len(g.Data) == 0 {
		return res, nil
	}
	row := g.Record(0)
	var err error
	if isNew {
		err = h.m.List.AddRow(ctx, row)
	} else {
		err = h.m.List.RefreshRow(ctx, row)
	}
	return res, err
}

// Tooltip returns the help text of a property.
func (h *FormHandler) Tooltip(ctx context.Context, p *models.FormProperty) string {
	return h.m.PropertyTooltips(ctx).Tooltip(p.ID)
}
