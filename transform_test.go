package scenecore

import (
	"math"
	"testing"
)

func approxEqualMat32(t *testing.T, name string, got, want Mat3x4, eps float32) {
	t.Helper()
	for i := range got {
		if float32(math.Abs(float64(got[i]-want[i]))) > eps {
			t.Fatalf("%s[%d] = %v, want %v (full: %v vs %v)", name, i, got[i], want[i], got, want)
		}
	}
}

func newTestTransformTree(t *testing.T) (*World, *TransformTree) {
	t.Helper()
	w := NewWorld(WorldOptions{})
	tree, err := NewTransformTree(w, "Node")
	if err != nil {
		t.Fatalf("NewTransformTree: %v", err)
	}
	return w, tree
}

func TestPropagateTransformsComposesParentAndLocal(t *testing.T) {
	w, tree := newTestTransformTree(t)
	root := tree.Root()

	a := w.CreateEntity()
	tree.NodeStore().Add(a, nil)
	mustSetParent(t, tree.Tree, a, root)
	if err := tree.AddTransform(a, translate(10, 0, 0)); err != nil {
		t.Fatalf("AddTransform(a): %v", err)
	}

	b := w.CreateEntity()
	tree.NodeStore().Add(b, nil)
	mustSetParent(t, tree.Tree, b, a)
	if err := tree.AddTransform(b, translate(0, 5, 0)); err != nil {
		t.Fatalf("AddTransform(b): %v", err)
	}

	PropagateTransforms(w)

	aWorld := tree.worldOf(a)
	approxEqualMat32(t, "a.world", aWorld, translate(10, 0, 0), 1e-6)

	bWorld := tree.worldOf(b)
	approxEqualMat32(t, "b.world", bWorld, translate(10, 5, 0), 1e-6)

	bInvWorld := gatherMat(fetchCols(tree.transforms, transformInvFields), tree.transforms.DenseIndexOf(b))
	approxEqualMat32(t, "b.inverseWorld", bInvWorld, InvertRigid3x4(bWorld), 1e-5)

	for _, e := range []Entity{a, b} {
		dirty, _ := tree.transforms.GetI32(e, "dirty")
		if dirty != 0 {
			t.Fatalf("entity %d still dirty after propagate", e)
		}
	}
}

func TestPropagateTransformsSkipsCleanSubtrees(t *testing.T) {
	w, tree := newTestTransformTree(t)
	root := tree.Root()

	a := w.CreateEntity()
	tree.NodeStore().Add(a, nil)
	mustSetParent(t, tree.Tree, a, root)
	if err := tree.AddTransform(a, translate(1, 1, 1)); err != nil {
		t.Fatalf("AddTransform: %v", err)
	}
	PropagateTransforms(w)

	row := tree.transforms.DenseIndexOf(a)
	versionBefore := tree.transforms.RowVersion(row)

	PropagateTransforms(w) // nothing dirty; must be a no-op for this row
	if got := tree.transforms.RowVersion(row); got != versionBefore {
		t.Fatalf("rowVersion changed on a clean propagate: %d -> %d", versionBefore, got)
	}
}

func TestTransformTreeReparentPreservesWorldTransform(t *testing.T) {
	w, tree := newTestTransformTree(t)
	root := tree.Root()

	x := w.CreateEntity()
	tree.NodeStore().Add(x, nil)
	mustSetParent(t, tree.Tree, x, root)
	if err := tree.AddTransform(x, translate(1, 0, 0)); err != nil {
		t.Fatalf("AddTransform(x): %v", err)
	}

	b := w.CreateEntity()
	tree.NodeStore().Add(b, nil)
	mustSetParent(t, tree.Tree, b, root)
	if err := tree.AddTransform(b, translate(10, 0, 0)); err != nil {
		t.Fatalf("AddTransform(b): %v", err)
	}

	PropagateTransforms(w)

	xWorldBefore := tree.worldOf(x)

	if err := tree.SetParent(x, b); err != nil {
		t.Fatalf("SetParent(x, b): %v", err)
	}

	local := gatherMat(fetchCols(tree.transforms, transformLocalFields), tree.transforms.DenseIndexOf(x))
	if math.Abs(float64(local[3])-(-9)) > 1e-5 {
		t.Fatalf("x.local.tx = %v, want -9", local[3])
	}

	PropagateTransforms(w)
	xWorldAfter := tree.worldOf(x)
	approxEqualMat32(t, "x.world", xWorldAfter, xWorldBefore, 1e-5)
}

func TestTransformTreeRemoveReparentsChildrenPreservingWorld(t *testing.T) {
	w, tree := newTestTransformTree(t)
	root := tree.Root()

	parent := w.CreateEntity()
	tree.NodeStore().Add(parent, nil)
	mustSetParent(t, tree.Tree, parent, root)
	if err := tree.AddTransform(parent, translate(5, 0, 0)); err != nil {
		t.Fatalf("AddTransform(parent): %v", err)
	}

	child := w.CreateEntity()
	tree.NodeStore().Add(child, nil)
	mustSetParent(t, tree.Tree, child, parent)
	if err := tree.AddTransform(child, translate(0, 2, 0)); err != nil {
		t.Fatalf("AddTransform(child): %v", err)
	}

	PropagateTransforms(w)
	childWorldBefore := tree.worldOf(child)

	if err := tree.Remove(parent); err != nil {
		t.Fatalf("Remove(parent): %v", err)
	}
	if p, ok := tree.ParentOf(child); !ok || p != root {
		t.Fatalf("ParentOf(child) = (%d, %v), want (%d, true)", p, ok, root)
	}

	PropagateTransforms(w)
	childWorldAfter := tree.worldOf(child)
	approxEqualMat32(t, "child.world", childWorldAfter, childWorldBefore, 1e-5)
}

func TestNewTransformTreeSharesTransformStoreAcrossTrees(t *testing.T) {
	w := NewWorld(WorldOptions{})
	first, err := NewTransformTree(w, "SceneNode")
	if err != nil {
		t.Fatalf("NewTransformTree(first): %v", err)
	}
	second, err := NewTransformTree(w, "SkeletonNode")
	if err != nil {
		t.Fatalf("NewTransformTree(second): %v", err)
	}
	if first.Transforms() != second.Transforms() {
		t.Fatalf("independent TransformTrees did not share the world's Transform store")
	}
}
