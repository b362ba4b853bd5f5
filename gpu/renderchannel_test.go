package gpu

import (
	"testing"

	scenecore "github.com/phanxgames/scenecore"
)

func TestRenderChannelPacksShapesAndOperations(t *testing.T) {
	w := scenecore.NewWorld(scenecore.WorldOptions{})
	tree, err := scenecore.NewTree[struct{}, struct{}](w, scenecore.HierarchyMeta("Render"), nil, nil)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	root := tree.Root()

	opStore, err := w.Register(scenecore.OperationMeta, 8)
	if err != nil {
		t.Fatalf("Register(Operation): %v", err)
	}
	shapeStore, err := w.Register(scenecore.ShapeMeta, 8)
	if err != nil {
		t.Fatalf("Register(Shape): %v", err)
	}
	opStore.Add(root, map[string]float64{"opType": 7})

	s1 := w.CreateEntity()
	tree.NodeStore().Add(s1, nil)
	if err := tree.SetParent(s1, root); err != nil {
		t.Fatalf("SetParent(s1): %v", err)
	}
	shapeStore.Add(s1, map[string]float64{"shapeType": 2, "p0": 10, "p1": 20})

	s2 := w.CreateEntity()
	tree.NodeStore().Add(s2, nil)
	if err := tree.SetParent(s2, root); err != nil {
		t.Fatalf("SetParent(s2): %v", err)
	}
	// s2 is inert: no Shape, no Operation row.

	order := tree.Order()
	ch := NewRenderChannel("render")
	changed := ch.Sync(RenderArgs{
		Order:       order,
		OrderEpoch:  tree.Epoch(),
		ShapeStore:  shapeStore,
		OpStore:     opStore,
		RenderStore: tree.NodeStore(),
	})
	if !changed {
		t.Fatalf("first Sync reported no change")
	}
	if ch.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", ch.Count())
	}

	rowOf := map[scenecore.Entity]int{}
	for i, e := range order {
		rowOf[e] = i
	}
	rootRow, s1Row, s2Row := rowOf[root], rowOf[s1], rowOf[s2]

	if kind := ch.getI32(rootRow, 0); kind != 7 {
		t.Fatalf("root.kind = %d, want 7", kind)
	}
	if fc := ch.getI32(rootRow, 1); int(fc) != s1Row {
		t.Fatalf("root.firstChildRow = %d, want %d", fc, s1Row)
	}
	if ns := ch.getI32(rootRow, 2); ns != -1 {
		t.Fatalf("root.nextSiblingRow = %d, want -1", ns)
	}
	if count := ch.getI32(rootRow, 4); count != 2 {
		t.Fatalf("root.childCount = %d, want 2", count)
	}

	if kind := ch.getI32(s1Row, 0); kind != 2 {
		t.Fatalf("s1.kind = %d, want 2", kind)
	}
	if ns := ch.getI32(s1Row, 2); int(ns) != s2Row {
		t.Fatalf("s1.nextSiblingRow = %d, want %d", ns, s2Row)
	}
	if transformIdx := ch.getI32(s1Row, 4); transformIdx != 0 {
		t.Fatalf("s1.transformIndex = %d, want 0 (fallback)", transformIdx)
	}
	if material := ch.getI32(s1Row, 5); material != -1 {
		t.Fatalf("s1.materialId = %d, want -1 (default)", material)
	}
	if p0 := ch.getF32(s1Row, 6); p0 != 10 {
		t.Fatalf("s1.p0 = %v, want 10", p0)
	}
	if p1 := ch.getF32(s1Row, 7); p1 != 20 {
		t.Fatalf("s1.p1 = %v, want 20", p1)
	}

	if kind := ch.getI32(s2Row, 0); kind != 0 {
		t.Fatalf("s2.kind = %d, want 0 (inert)", kind)
	}
	for lane := 4; lane < 16; lane++ {
		if v := ch.getI32(s2Row, lane); v != 0 {
			t.Fatalf("s2 payload lane %d = %d, want 0", lane, v)
		}
	}
}

func TestRenderChannelEarlyOutsWhenNothingChanged(t *testing.T) {
	w := scenecore.NewWorld(scenecore.WorldOptions{})
	tree, err := scenecore.NewTree[struct{}, struct{}](w, scenecore.HierarchyMeta("Render"), nil, nil)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	root := tree.Root()
	shapeStore, err := w.Register(scenecore.ShapeMeta, 8)
	if err != nil {
		t.Fatalf("Register(Shape): %v", err)
	}

	args := RenderArgs{
		Order:       tree.Order(),
		OrderEpoch:  tree.Epoch(),
		ShapeStore:  shapeStore,
		RenderStore: tree.NodeStore(),
	}
	_ = root

	ch := NewRenderChannel("render")
	if !ch.Sync(args) {
		t.Fatalf("first Sync reported no change")
	}
	if ch.Sync(args) {
		t.Fatalf("second identical Sync reported a change, want early-out")
	}
}
