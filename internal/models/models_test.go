package models

import (
	"slices"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/recrovit/rgfclient/internal/record"
)

func TestOptions(t *testing.T) {
	o := Options{
		"RGO_MaxItem":     json.Number("1200"),
		"RGO_SQLTimeout":  30.0,
		"RGO_ClientMode":  "True",
		"RGO_NoDetails":   false,
		"RGO_QueryString": "select 1",
		"RGO_Null":        nil,
		"RGO_Text":        "abc",
	}
	if got := o.Int64("RGO_MaxItem", -1); got != 1200 {
		t.Errorf("Int64(RGO_MaxItem) = %d, want 1200", got)
	}
	if got, ok := o.IntOK("RGO_SQLTimeout"); !ok || got != 30 {
		t.Errorf("IntOK(RGO_SQLTimeout) = %d, %t, want 30, true", got, ok)
	}
	if _, ok := o.IntOK("RGO_Null"); ok {
		t.Error("IntOK(RGO_Null) = true, want false")
	}
	if _, ok := o.IntOK("RGO_Text"); ok {
		t.Error("IntOK(RGO_Text) = true, want false")
	}
	if got := o.Int("missing", 6); got != 6 {
		t.Errorf("Int(missing) = %d, want 6", got)
	}
	if !o.Bool("RGO_ClientMode") {
		t.Error("Bool(RGO_ClientMode) = false, want true")
	}
	if o.Bool("RGO_NoDetails") || o.Bool("missing") {
		t.Error("Bool() = true for false or missing option")
	}
	if got := o.String("RGO_QueryString"); got != "select 1" {
		t.Errorf("String(RGO_QueryString) = %q, want %q", got, "select 1")
	}
	if got := o.String("RGO_Null"); got != "" {
		t.Errorf("String(RGO_Null) = %q, want empty", got)
	}
	if !o.Has("RGO_Null") || o.Has("missing") {
		t.Error("Has() mismatch")
	}
}

func testEntity() *Entity {
	return &Entity{
		EntityName: "Product",
		CRUD:       "CRUD",
		Properties: []*Property{
			{ID: 1, Alias: "Id", ClientName: "c1", IsKey: true, ClientDataType: record.DataTypeInteger},
			{ID: 2, Alias: "Name", ClientName: "c2", ColPos: 2, Sort: -2, ClientDataType: record.DataTypeString},
			{ID: 3, Alias: "Price", ClientName: "c3", ColPos: 1, Sort: 1, ClientDataType: record.DataTypeDecimal},
			{ID: 4, Alias: "Hidden", ClientName: "c4"},
		},
	}
}

func ids(props []*Property) []int {
	var out []int
	for _, p := range props {
		out = append(out, p.ID)
	}
	return out
}

func TestEntity(t *testing.T) {
	e := testEntity()
	if diff := cmp.Diff([]int{3, 2}, ids(e.SortedVisibleColumns())); diff != "" {
		t.Errorf("SortedVisibleColumns() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3, 2}, ids(e.SortColumns())); diff != "" {
		t.Errorf("SortColumns() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1}, ids(e.KeyProperties())); diff != "" {
		t.Errorf("KeyProperties() mismatch (-want +got):\n%s", diff)
	}
	if p := e.PropertyByAlias("price"); p == nil || p.ID != 3 {
		t.Errorf("PropertyByAlias(price) = %v, want id 3", p)
	}
	if p := e.PropertyByID(9); p != nil {
		t.Errorf("PropertyByID(9) = %v, want nil", p)
	}
	if got := e.DataTypes()["c3"]; got != record.DataTypeDecimal {
		t.Errorf("DataTypes()[c3] = %v, want Decimal", got)
	}
}

func TestParsePermissions(t *testing.T) {
	tests := []struct {
		in   string
		want Permissions
		str  string
	}{
		{"CRUD", Permissions{Add: true, Read: true, Edit: true, Delete: true}, "CRUD"},
		{"r", Permissions{Read: true}, "R"},
		{"RD", Permissions{Read: true, Delete: true}, "RD"},
		{"", Permissions{}, ""},
		{"xu", Permissions{Edit: true}, "U"},
	}
	for _, tt := range tests {
		got := ParsePermissions(tt.in)
		if got != tt.want {
			t.Errorf("ParsePermissions(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if got.String() != tt.str {
			t.Errorf("ParsePermissions(%q).String() = %q, want %q", tt.in, got.String(), tt.str)
		}
	}
}

func TestParseFilter(t *testing.T) {
	const doc = `<RgfFilter>
  <Column Alias="Name" Operators="Like, NotLike,Bogus"/>
  <Column Alias="Status" Operators="Equal,In">
    <Item Key="1" Value="Open"/>
    <Item Key="2" Value="Closed"/>
  </Column>
</RgfFilter>`
	f, err := ParseFilter(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Columns) != 2 {
		t.Fatalf("len(Columns) = %d, want 2", len(f.Columns))
	}
	if diff := cmp.Diff([]QueryOperator{QueryLike, QueryNotLike}, f.Columns[0].Operators()); diff != "" {
		t.Errorf("Operators() mismatch (-want +got):\n%s", diff)
	}
	want := []DictionaryItem{{"1", "Open"}, {"2", "Closed"}}
	if diff := cmp.Diff(want, f.Columns[1].Dictionary); diff != "" {
		t.Errorf("Dictionary mismatch (-want +got):\n%s", diff)
	}
	if _, err := ParseFilter("<RgfFilter>"); err == nil {
		t.Error("ParseFilter(truncated) succeeded")
	}
}

func TestQueryOperator(t *testing.T) {
	for op := QueryInvalid; op <= QueryNotExists; op++ {
		if got := ParseQueryOperator(op.String()); got != op {
			t.Errorf("ParseQueryOperator(%q) = %v, want %v", op.String(), got, op)
		}
	}
	if got := ParseQueryOperator("intervale"); got != QueryIntervalE {
		t.Errorf("ParseQueryOperator(intervale) = %v, want IntervalE", got)
	}
	if !QueryIntervalE.IsInterval() || QueryLess.IsInterval() {
		t.Error("IsInterval() mismatch")
	}
	if !QueryIsNotNull.IsNullCheck() || QueryEqual.IsNullCheck() {
		t.Error("IsNullCheck() mismatch")
	}
}

func TestParseForm(t *testing.T) {
	const doc = `<RgfForm>
  <Tab Index="0" Title="General">
    <Group Index="0">
      <Property Id="2" Alias="Name"><Value>Widget</Value></Property>
      <Property Id="5" Alias="Category">
        <Item Key="1" Value="One"/>
        <ForeignEntity><EntityKey Key="7" Foreign="8" Value="42"/></ForeignEntity>
      </Property>
    </Group>
  </Tab>
  <Tab Index="1"><Group Index="0"><Property Id="3" Alias="Price"><Value></Value></Property></Group></Tab>
</RgfForm>`
	f, err := ParseForm(doc)
	if err != nil {
		t.Fatal(err)
	}
	props := f.AllProperties()
	if len(props) != 3 {
		t.Fatalf("len(AllProperties()) = %d, want 3", len(props))
	}
	if props[0].OrigValue == nil || *props[0].OrigValue != "Widget" {
		t.Errorf("Name OrigValue = %v, want Widget", props[0].OrigValue)
	}
	if props[1].OrigValue != nil {
		t.Errorf("Category OrigValue = %q, want nil", *props[1].OrigValue)
	}
	if props[2].OrigValue == nil || *props[2].OrigValue != "" {
		t.Errorf("Price OrigValue = %v, want empty string", props[2].OrigValue)
	}
	if !props[1].HasAvailableItem("1") || props[1].HasAvailableItem("2") {
		t.Error("HasAvailableItem() mismatch")
	}
	key, ok := props[1].ForeignEntity.FirstKey()
	if !ok || key != (ForeignKey{Key: 7, Foreign: 8, Value: "42"}) {
		t.Errorf("FirstKey() = %+v, %t", key, ok)
	}
	if _, ok := props[0].ForeignEntity.FirstKey(); ok {
		t.Error("FirstKey() on nil foreign entity = true")
	}
	if p := f.PropertyByID(3); p == nil || p.Alias != "Price" {
		t.Errorf("PropertyByID(3) = %v", p)
	}
	if _, err := ParseForm(""); err == nil {
		t.Error("ParseForm(empty) succeeded")
	}
}

func TestClone(t *testing.T) {
	t.Run("conditions", func(t *testing.T) {
		orig := []*Condition{{ClientID: 1, Conditions: []*Condition{{ClientID: 2, Param1: "x"}}}}
		c, err := CloneConditions(orig)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(orig, c); diff != "" {
			t.Errorf("CloneConditions() mismatch (-want +got):\n%s", diff)
		}
		c[0].Conditions[0].Param1 = "y"
		if orig[0].Conditions[0].Param1 != "x" {
			t.Error("CloneConditions() shares nested conditions")
		}
	})

	t.Run("filter settings", func(t *testing.T) {
		id := 4
		orig := &FilterSettings{FilterSettingsID: &id, SettingsName: "a", Conditions: []*Condition{{ClientID: 1}}}
		c, err := orig.Clone()
		if err != nil {
			t.Fatal(err)
		}
		*c.FilterSettingsID = 5
		c.Conditions[0].ClientID = 9
		if orig.ID() != 4 || orig.Conditions[0].ClientID != 1 {
			t.Errorf("Clone() shares data with original: %+v", orig)
		}
	})

	t.Run("list param", func(t *testing.T) {
		orig := &ListParam{Skip: 10, Take: 5, Sort: [][2]int{{1, 1}}, Columns: []int{1, 2}}
		c := orig.Clone()
		c.Sort[0][1] = -1
		c.Columns = append(c.Columns[:1], 3)
		if orig.Sort[0][1] != 1 || !slices.Equal(orig.Columns, []int{1, 2}) {
			t.Errorf("Clone() shares data with original: %+v", orig)
		}
	})

	t.Run("entity key", func(t *testing.T) {
		var nilKey *EntityKey
		if !nilKey.IsEmpty() || !(&EntityKey{}).IsEmpty() {
			t.Error("IsEmpty() = false for empty key")
		}
		k := &EntityKey{Keys: record.New(), Signature: "s"}
		k.Keys.Set("c1", 1)
		c := k.Clone()
		c.Keys.Set("c1", 2)
		if got, _ := k.Keys.Value("c1").Int64(); got != 1 || k.IsEmpty() {
			t.Errorf("Clone() shares keys: %v", k.Keys)
		}
	})
}

func TestCoreMessages(t *testing.T) {
	var m CoreMessages
	if !m.IsEmpty() {
		t.Error("IsEmpty() = false for zero value")
	}
	const in = `{"error":{"b":"second","a":"first"}}`
	if err := json.Unmarshal([]byte(in), &m); err != nil {
		t.Fatal(err)
	}
	var got []string
	for k, v := range Messages(m.Error) {
		got = append(got, k+"="+v)
	}
	if diff := cmp.Diff([]string{"b=second", "a=first"}, got); diff != "" {
		t.Errorf("Messages() mismatch (-want +got):\n%s", diff)
	}
	m.AddInfo("x", "info")
	if m.IsEmpty() || m.Info.Len() != 1 {
		t.Errorf("AddInfo() did not add: %+v", m)
	}
}
