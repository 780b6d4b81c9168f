package grid

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/recrovit/rgfclient/internal/models"
)

// Id > 3 Or (Name Like "W")
const widgetConditions = `[
  {"propertyId": 1, "queryOperator": 7, "param1": 3},
  {"logicalOperator": 1, "conditions": [
    {"propertyId": 2, "queryOperator": 3, "param1": "W"}
  ]}
]`

func newTestFilter(t *testing.T) (*Manager, *FilterHandler, *fakeAPI) {
	t.Helper()
	api := newFakeAPI(2, 5)
	m, _ := newTestManager(t, api, Deps{})
	initManager(t, m)
	return m, m.FilterHandler(t.Context()), api
}

// shape renders a condition tree as client ids, brackets in parentheses.
func shape(conds []*models.Condition) []any {
	var out []any
	for _, c := range conds {
		if c.IsBracket() {
			out = append(out, shape(c.Conditions))
		} else {
			out = append(out, c.ClientID)
		}
	}
	return out
}

func TestFilterHandler_Properties(t *testing.T) {
	_, h, _ := newTestFilter(t)
	props := h.Properties()
	var got []string
	for _, p := range props {
		got = append(got, p.ColTitle)
	}
	if diff := cmp.Diff([]string{"Id", "Name"}, got); diff != "" {
		t.Fatalf("Properties() mismatch (-want +got):\n%s", diff)
	}
	want := []models.QueryOperator{models.QueryLike, models.QueryEqual, models.QueryIsNull}
	if diff := cmp.Diff(want, props[1].Operators()); diff != "" {
		t.Errorf("Operators() mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterHandler_EditTree(t *testing.T) {
	_, h, _ := newTestFilter(t)
	if !h.InitFilter(widgetConditions) {
		t.Fatal("InitFilter() = false, want true")
	}
	if diff := cmp.Diff([]any{2, []any{4}}, shape(h.Conditions())); diff != "" {
		t.Fatalf("initial tree mismatch (-want +got):\n%s", diff)
	}

	i, c := FindCondition(h.Conditions(), 4)
	if i != 0 || c == nil || c.PropertyID != 2 {
		t.Errorf("FindCondition(4) = %d, %+v, want 0 and the Name condition", i, c)
	}
	if i, c := FindCondition(h.Conditions(), 99); i != -1 || c != nil {
		t.Errorf("FindCondition(99) = %d, %+v, want -1, nil", i, c)
	}

	added := h.AddCondition(3)
	if added == nil || added.ClientID != 5 || added.PropertyID != 1 || added.QueryOperator != models.QueryEqual {
		t.Fatalf("AddCondition(3) = %+v", added)
	}
	if diff := cmp.Diff([]any{2, []any{4, 5}}, shape(h.Conditions())); diff != "" {
		t.Errorf("after AddCondition mismatch (-want +got):\n%s", diff)
	}

	bracket := h.AddBracket(2)
	if bracket == nil || bracket.ClientID != 6 {
		t.Fatalf("AddBracket(2) = %+v", bracket)
	}
	if diff := cmp.Diff([]any{[]any{2}, []any{4, 5}}, shape(h.Conditions())); diff != "" {
		t.Errorf("after AddBracket mismatch (-want +got):\n%s", diff)
	}
	h.RemoveBracket(6)
	if diff := cmp.Diff([]any{2, []any{4, 5}}, shape(h.Conditions())); diff != "" {
		t.Errorf("after RemoveBracket mismatch (-want +got):\n%s", diff)
	}

	for _, id := range []int{0, 99} {
		if h.RemoveCondition(id) {
			t.Errorf("RemoveCondition(%d) = true, want false", id)
		}
	}
	if !h.RemoveCondition(4) {
		t.Error("RemoveCondition(4) = false, want true")
	}
	if diff := cmp.Diff([]any{2, []any{5}}, shape(h.Conditions())); diff != "" {
		t.Errorf("after RemoveCondition mismatch (-want +got):\n%s", diff)
	}

	if !h.ResetFilter() {
		t.Fatal("ResetFilter() = false, want true")
	}
	if diff := cmp.Diff([]any{2, []any{4}}, shape(h.Conditions())); diff != "" {
		t.Errorf("after ResetFilter mismatch (-want +got):\n%s", diff)
	}
	if h.InitFilter("{not json") {
		t.Error("InitFilter(invalid) = true, want false")
	}
}

func TestFilterHandler_ChangeCondition(t *testing.T) {
	_, h, _ := newTestFilter(t)
	c := h.AddCondition(0)
	if c == nil {
		t.Fatal("AddCondition(0) = nil")
	}

	if h.ChangeProperty(c, 42) {
		t.Error("ChangeProperty(unknown) = true, want false")
	}
	if !h.ChangeProperty(c, 2) {
		t.Fatal("ChangeProperty(2) = false, want true")
	}
	if c.PropertyID != 2 || c.QueryOperator != models.QueryEqual || c.Param1 != "" {
		t.Errorf("after ChangeProperty = %+v, want Name Equal \"\"", c)
	}
	if h.ChangeProperty(c, 2) {
		t.Error("ChangeProperty(same) = true, want false")
	}

	if h.ChangeQueryOperator(c, models.QueryGreater) {
		t.Error("ChangeQueryOperator(Greater) = true, want false")
	}
	if !h.ChangeQueryOperator(c, models.QueryIsNull) {
		t.Fatal("ChangeQueryOperator(IsNull) = false, want true")
	}
	if c.QueryOperator != models.QueryIsNull || c.Param1 != nil || c.Param2 != nil {
		t.Errorf("after ChangeQueryOperator = %+v, want IsNull without parameters", c)
	}
}

func TestFilterHandler_QuickFilter(t *testing.T) {
	m, h, api := newTestFilter(t)
	ctx := t.Context()
	name := m.Entity().PropertyByID(2)
	id := m.Entity().PropertyByID(1)

	if err := h.SetQuickFilter(ctx, name, "  W1 "); err != nil {
		t.Fatal(err)
	}
	conds := h.Conditions()
	if len(conds) != 2 || !conds[1].IsQuickFilter || conds[1].Param1 != "W1" || conds[1].QueryOperator != models.QueryLike {
		t.Fatalf("Conditions() = %+v, want user and quick filter brackets", conds)
	}
	if got := api.requests[len(api.requests)-1].ListParam.UserFilter; len(got) != 2 {
		t.Errorf("sent UserFilter = %+v, want two brackets", got)
	}
	tests := []struct {
		p     *models.Property
		match string
		want  bool
	}{
		{name, "", true},
		{name, "w1", true},
		{name, "W2", false},
		{id, "", false},
	}
	for _, tt := range tests {
		if got := m.IsColumnFiltered(tt.p, tt.match); got != tt.want {
			t.Errorf("IsColumnFiltered(%s, %q) = %v, want %v", tt.p.Alias, tt.match, got, tt.want)
		}
	}

	if err := h.SetQuickFilter(ctx, name, ""); err != nil {
		t.Fatal(err)
	}
	if got := h.Conditions(); len(got) != 0 {
		t.Errorf("Conditions() = %+v, want none", got)
	}
	if m.List.IsFiltered() {
		t.Error("IsFiltered() = true, want false")
	}
}

func TestFilterHandler_PredefinedFilters(t *testing.T) {
	m, h, _ := newTestFilter(t)
	ctx := t.Context()

	if f, err := h.SelectPredefinedFilter(1); f != nil || err != nil {
		t.Errorf("SelectPredefinedFilter(1) = %+v, %v, want nil, nil", f, err)
	}
	f, err := h.SelectPredefinedFilter(7)
	if err != nil || f == nil || f.SettingsName != "Large" {
		t.Fatalf("SelectPredefinedFilter(7) = %+v, %v", f, err)
	}
	// The stored filter is copied, not shared.
	f.Conditions[0].Param1 = 99.0
	if got := h.PredefinedFilters[0].Conditions[0].Param1; got != 2.0 {
		t.Errorf("stored Param1 = %v, want 2", got)
	}
	if diff := cmp.Diff([]any{2}, shape(h.Conditions())); diff != "" {
		t.Errorf("Conditions() mismatch (-want +got):\n%s", diff)
	}

	if ok, err := h.SaveFilterSettings(ctx, &models.FilterSettings{SettingsName: "  "}); ok || err != nil {
		t.Errorf("SaveFilterSettings(blank) = %v, %v, want false, nil", ok, err)
	}
	ok, err := h.SaveFilterSettings(ctx, &models.FilterSettings{SettingsName: "Mine"})
	if !ok || err != nil {
		t.Fatalf("SaveFilterSettings() = %v, %v, want true, nil", ok, err)
	}
	var names []string
	for _, p := range h.PredefinedFilters {
		names = append(names, p.SettingsName)
	}
	if diff := cmp.Diff([]string{"Mine", "Large"}, names); diff != "" {
		t.Errorf("PredefinedFilters mismatch (-want +got):\n%s", diff)
	}
	if got := h.PredefinedFilters[0].ID(); got != 8 {
		t.Errorf("saved ID() = %d, want 8", got)
	}

	if !h.DeleteFilterSettings(ctx, 7) {
		t.Fatal("DeleteFilterSettings(7) = false, want true")
	}
	if got := len(h.PredefinedFilters); got != 1 {
		t.Errorf("len(PredefinedFilters) = %d, want 1", got)
	}

	timeout := 30
	if err := h.SetFilter(ctx, nil, &timeout); err != nil {
		t.Fatal(err)
	}
	if got := m.List.SQLTimeout(); got == nil || *got != 30 {
		t.Errorf("SQLTimeout() = %v, want 30", got)
	}
}
