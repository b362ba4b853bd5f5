package scenecore

import "testing"

func xyMeta() ComponentMeta {
	return MustDefineMeta("Pos", []FieldDef{
		{Key: "x", Kind: FieldF32, Default: 0},
	})
}

func TestComponentStoreSwapRemove(t *testing.T) {
	s := NewComponentStore(xyMeta(), 4)

	s.Add(10, map[string]float64{"x": 1})
	s.Add(20, map[string]float64{"x": 2})
	s.Add(30, map[string]float64{"x": 3})

	before := s.StoreEpoch()
	if !s.Remove(20) {
		t.Fatalf("Remove(20) = false, want true")
	}
	if s.StoreEpoch() <= before {
		t.Fatalf("storeEpoch did not increase on Remove")
	}

	x := s.F32("x")
	if len(x) != 2 || x[0] != 1 || x[1] != 3 {
		t.Fatalf("x column = %v, want [1 3]", x)
	}
	if got := s.DenseIndexOf(30); got != 1 {
		t.Fatalf("DenseIndexOf(30) = %d, want 1", got)
	}
	if s.Has(20) {
		t.Fatalf("Has(20) = true after remove")
	}
}

func TestComponentStoreAddExistingIsUpdate(t *testing.T) {
	s := NewComponentStore(xyMeta(), 4)
	row1 := s.Add(1, map[string]float64{"x": 5})
	row2 := s.Add(1, map[string]float64{"x": 9})
	if row1 != row2 {
		t.Fatalf("Add on existing entity changed row: %d vs %d", row1, row2)
	}
	if got, _ := s.Get(1, "x"); got != 9 {
		t.Fatalf("x = %v, want 9", got)
	}
}

func TestComponentStoreUpdateIgnoresUnknownFields(t *testing.T) {
	s := NewComponentStore(xyMeta(), 4)
	s.Add(1, nil)
	changed := s.Update(1, map[string]float64{"bogus": 1})
	if changed {
		t.Fatalf("Update with only unknown fields reported changed=true")
	}
}

func TestComponentStoreUpdateAbsentEntityNoop(t *testing.T) {
	s := NewComponentStore(xyMeta(), 4)
	if s.Update(42, map[string]float64{"x": 1}) {
		t.Fatalf("Update on absent entity returned true")
	}
}

func TestComponentStoreGrows(t *testing.T) {
	s := NewComponentStore(xyMeta(), 1)
	for i := Entity(0); i < 100; i++ {
		s.Add(i, map[string]float64{"x": float64(i)})
	}
	for i := Entity(0); i < 100; i++ {
		if got, _ := s.Get(i, "x"); got != float64(i) {
			t.Fatalf("entity %d: x = %v, want %v", i, got, i)
		}
	}
}

func TestComponentStoreRowVersionBumpsOnAddUpdate(t *testing.T) {
	s := NewComponentStore(xyMeta(), 4)
	row := s.Add(1, nil)
	v0 := s.RowVersion(row)
	if v0 == 0 {
		t.Fatalf("rowVersion did not increase on Add")
	}
	s.Update(1, map[string]float64{"x": 1})
	if s.RowVersion(row) <= v0 {
		t.Fatalf("rowVersion did not increase on Update")
	}
}

func TestHierarchyMetaDetection(t *testing.T) {
	h := HierarchyMeta("Node")
	if !IsHierarchyMeta(h) {
		t.Fatalf("HierarchyMeta output did not satisfy IsHierarchyMeta")
	}
	if IsHierarchyMeta(xyMeta()) {
		t.Fatalf("plain meta misreported as hierarchy meta")
	}
}
