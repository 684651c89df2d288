package store

import (
	"errors"
	"reflect"
	"testing"

	"polarlab/api/internal/measure"
)

func testState(t *testing.T) State {
	t.Helper()
	st := BuiltinDefaults().State()
	st = st.AddTable(Table{ID: "t1", Name: "Mine", DistributionIDs: []string{}, MeasureOrder: []string{}})
	st = st.SaveDistribution(NewDistribution("d1", "D1", []float64{1, 0, 0, 0, 1}, []measure.Result{
		measure.NewValue("ER(0.8)", 0.5),
		measure.NewValue("EMD", 0.7),
	}))
	st = st.SaveDistribution(NewDistribution("d2", "D2", []float64{0, 1, 0, 1, 0}, []measure.Result{
		measure.NewValue("EMD", 0.3),
		measure.NewValue("Shannon", 0.9),
	}))
	return st
}

func TestGenerateX(t *testing.T) {
	if got := GenerateX(1); !reflect.DeepEqual(got, []float64{0.5}) {
		t.Fatalf("GenerateX(1) = %v", got)
	}
	if got := GenerateX(5); !reflect.DeepEqual(got, []float64{0, 0.25, 0.5, 0.75, 1}) {
		t.Fatalf("GenerateX(5) = %v", got)
	}
	if got := GenerateX(0); len(got) != 0 {
		t.Fatalf("GenerateX(0) = %v", got)
	}
	a, b := GenerateX(7), GenerateX(7)
	if !floatsEqual(a, b) {
		t.Fatalf("GenerateX must be deterministic")
	}
}

func TestAddToTableAppendsNewMeasureNames(t *testing.T) {
	st := testState(t)

	st, ok := st.AddToTable("t1", "d1")
	if !ok {
		t.Fatal("expected first add to succeed")
	}
	st, ok = st.AddToTable("t1", "d2")
	if !ok {
		t.Fatal("expected second distribution to be added")
	}

	table, _ := st.Table("t1")
	if want := []string{"d1", "d2"}; !reflect.DeepEqual(table.DistributionIDs, want) {
		t.Fatalf("distributionIds = %v, want %v", table.DistributionIDs, want)
	}
	if want := []string{"ER(0.8)", "EMD", "Shannon"}; !reflect.DeepEqual(table.MeasureOrder, want) {
		t.Fatalf("measureOrder = %v, want %v", table.MeasureOrder, want)
	}
}

func TestAddToTableIsIdempotent(t *testing.T) {
	st := testState(t)
	first, ok := st.AddToTable("t1", "d1")
	if !ok {
		t.Fatal("expected first add to succeed")
	}
	second, ok := first.AddToTable("t1", "d1")
	if ok {
		t.Fatal("expected second add to report false")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("second add must leave state unchanged")
	}
}

func TestAddToTableRejectsMissingAndDefaultTables(t *testing.T) {
	st := testState(t)
	if _, ok := st.AddToTable("nope", "d1"); ok {
		t.Fatal("expected unknown table to be rejected")
	}
	if _, ok := st.AddToTable(DefaultTableID, "d1"); ok {
		t.Fatal("expected default table to be read-only")
	}
}

func TestAddToTableWithUnknownDistributionKeepsColumns(t *testing.T) {
	st := testState(t)
	st, ok := st.AddToTable("t1", "ghost")
	if !ok {
		t.Fatal("expected id to be added")
	}
	table, _ := st.Table("t1")
	if len(table.MeasureOrder) != 0 || !table.Contains("ghost") {
		t.Fatalf("unexpected table %+v", table)
	}
	if got := st.TableDistributions("t1"); len(got) != 0 {
		t.Fatalf("expected unresolved ids to be skipped, got %v", got)
	}
}

func TestTransitionsDoNotMutateReceiver(t *testing.T) {
	st := testState(t)
	before, _ := st.Table("t1")
	beforeIDs := append([]string{}, before.DistributionIDs...)

	next, _ := st.AddToTable("t1", "d1")
	_, _ = next.RemoveFromTable("t1", "d1")

	after, _ := st.Table("t1")
	if !reflect.DeepEqual(after.DistributionIDs, beforeIDs) {
		t.Fatalf("receiver changed: %v", after.DistributionIDs)
	}
	if _, ok := st.Distributions["d3"]; ok {
		t.Fatal("unexpected distribution")
	}
	_ = st.SaveDistribution(NewDistribution("d3", "D3", []float64{1}, nil))
	if _, ok := st.Distributions["d3"]; ok {
		t.Fatal("SaveDistribution mutated receiver map")
	}
}

func TestRemoveFromTableKeepsMeasureOrder(t *testing.T) {
	st := testState(t)
	st, _ = st.AddToTable("t1", "d1")
	st, err := st.RemoveFromTable("t1", "d1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	table, _ := st.Table("t1")
	if len(table.DistributionIDs) != 0 {
		t.Fatalf("expected no members, got %v", table.DistributionIDs)
	}
	if want := []string{"ER(0.8)", "EMD"}; !reflect.DeepEqual(table.MeasureOrder, want) {
		t.Fatalf("measureOrder = %v, want %v (columns are not pruned)", table.MeasureOrder, want)
	}
	if _, ok := st.Distribution("d1"); !ok {
		t.Fatal("removing from a table must not delete the distribution")
	}
}

func TestRemoveFromDefaultTableIsRejected(t *testing.T) {
	st := testState(t)
	next, err := st.RemoveFromTable(DefaultTableID, "builtin-uniform")
	if !errors.Is(err, ErrReadOnlyTable) {
		t.Fatalf("expected ErrReadOnlyTable, got %v", err)
	}
	table, _ := next.Table(DefaultTableID)
	if !table.Contains("builtin-uniform") {
		t.Fatal("default table membership changed")
	}
}

func TestRemoveTable(t *testing.T) {
	st := testState(t)
	st = st.RemoveTable(DefaultTableID)
	if _, ok := st.Table(DefaultTableID); !ok {
		t.Fatal("default table must survive removal")
	}
	st = st.RemoveTable("t1")
	if _, ok := st.Table("t1"); ok {
		t.Fatal("expected t1 to be removed")
	}
	if _, ok := st.Distribution("d1"); !ok {
		t.Fatal("distributions must survive table removal")
	}
}

func TestAddMeasureNames(t *testing.T) {
	st := testState(t)
	st, err := st.AddMeasureNames("t1", []string{"EMD", "BiPol", "EMD", "Shannon"})
	if err != nil {
		t.Fatalf("add names: %v", err)
	}
	st, err = st.AddMeasureNames("t1", []string{"Shannon", "Experts"})
	if err != nil {
		t.Fatalf("add names: %v", err)
	}
	table, _ := st.Table("t1")
	if want := []string{"EMD", "BiPol", "Shannon", "Experts"}; !reflect.DeepEqual(table.MeasureOrder, want) {
		t.Fatalf("measureOrder = %v, want %v", table.MeasureOrder, want)
	}
	if _, err := st.AddMeasureNames("missing", []string{"EMD"}); !errors.Is(err, ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

func TestReorderMeasureAndInverse(t *testing.T) {
	st := testState(t)
	st, _ = st.AddMeasureNames("t1", []string{"A", "B", "C", "D", "E"})
	original, _ := st.Table("t1")

	cases := [][2]int{{0, 4}, {4, 0}, {1, 3}, {2, 2}, {3, 1}}
	for _, c := range cases {
		moved, err := st.ReorderMeasure("t1", c[0], c[1])
		if err != nil {
			t.Fatalf("reorder %v: %v", c, err)
		}
		restored, err := moved.ReorderMeasure("t1", c[1], c[0])
		if err != nil {
			t.Fatalf("inverse %v: %v", c, err)
		}
		table, _ := restored.Table("t1")
		if !reflect.DeepEqual(table.MeasureOrder, original.MeasureOrder) {
			t.Fatalf("case %v: got %v, want %v", c, table.MeasureOrder, original.MeasureOrder)
		}
	}

	moved, _ := st.ReorderMeasure("t1", 0, 2)
	table, _ := moved.Table("t1")
	if want := []string{"B", "C", "A", "D", "E"}; !reflect.DeepEqual(table.MeasureOrder, want) {
		t.Fatalf("measureOrder = %v, want %v", table.MeasureOrder, want)
	}
}

// Out-of-range indices are rejected and leave the order untouched.
func TestReorderOutOfRange(t *testing.T) {
	st := testState(t)
	st, _ = st.AddMeasureNames("t1", []string{"A", "B"})
	for _, c := range [][2]int{{-1, 0}, {0, 2}, {2, 0}, {0, -1}} {
		next, err := st.ReorderMeasure("t1", c[0], c[1])
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("case %v: expected ErrIndexOutOfRange, got %v", c, err)
		}
		table, _ := next.Table("t1")
		if want := []string{"A", "B"}; !reflect.DeepEqual(table.MeasureOrder, want) {
			t.Fatalf("case %v: order changed to %v", c, table.MeasureOrder)
		}
	}
	if _, err := st.ReorderDistribution("t1", 0, 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange on empty members, got %v", err)
	}
}

func TestReorderDistribution(t *testing.T) {
	st := testState(t)
	st, _ = st.AddToTable("t1", "d1")
	st, _ = st.AddToTable("t1", "d2")
	st, err := st.ReorderDistribution("t1", 1, 0)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	table, _ := st.Table("t1")
	if want := []string{"d2", "d1"}; !reflect.DeepEqual(table.DistributionIDs, want) {
		t.Fatalf("distributionIds = %v, want %v", table.DistributionIDs, want)
	}
	dists := st.TableDistributions("t1")
	if len(dists) != 2 || dists[0].ID != "d2" {
		t.Fatalf("TableDistributions must follow table order, got %v", dists)
	}
}

func TestWithMeasuresReplacesByName(t *testing.T) {
	d := NewDistribution("d", "D", []float64{1, 1}, []measure.Result{
		measure.NewValue("EMD", 0.1),
		measure.NewError("BiPol", "failed"),
	})
	merged := d.WithMeasures([]measure.Result{
		measure.NewValue("BiPol", 0.4),
		measure.NewValue("Shannon", 0.2),
	})
	if want := []string{"EMD", "BiPol", "Shannon"}; !reflect.DeepEqual(merged.MeasureNames(), want) {
		t.Fatalf("names = %v, want %v", merged.MeasureNames(), want)
	}
	r, _ := merged.Result("BiPol")
	if r.Status() != measure.StatusValue || *r.Value != 0.4 {
		t.Fatalf("expected BiPol to be replaced, got %+v", r)
	}
	if r, _ := d.Result("BiPol"); r.Status() != measure.StatusError {
		t.Fatal("WithMeasures must not modify the receiver")
	}
}

func TestWithMissingMeasuresNeverOverwrites(t *testing.T) {
	d := NewDistribution("d", "D", []float64{1, 1}, []measure.Result{measure.NewValue("EMD", 0.1)})
	merged, added := d.WithMissingMeasures([]measure.Result{
		measure.NewValue("EMD", 0.9),
		measure.NewValue("Shannon", 0.2),
	})
	if want := []string{"Shannon"}; !reflect.DeepEqual(added, want) {
		t.Fatalf("added = %v, want %v", added, want)
	}
	r, _ := merged.Result("EMD")
	if *r.Value != 0.1 {
		t.Fatalf("existing EMD overwritten: %v", *r.Value)
	}
}

func TestSameShape(t *testing.T) {
	a := NewDistribution("a", "A", []float64{0.2, 0.8}, nil)
	b := NewDistribution("b", "B", []float64{0.2, 0.8}, []measure.Result{measure.NewValue("EMD", 1)})
	c := NewDistribution("c", "C", []float64{0.2, 0.8, 0}, nil)
	if !a.SameShape(b) {
		t.Fatal("expected same shape regardless of id, name and measures")
	}
	if a.SameShape(c) {
		t.Fatal("expected different lengths to differ")
	}
}
