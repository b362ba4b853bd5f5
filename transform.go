package scenecore

import (
	"fmt"
	"sort"
)

// transformLocalFields, transformWorldFields, and transformInvFields name
// the 12 scalar columns backing each row-major 3x4 matrix the Transform
// component carries, in the order Mat3x4 lays them out.
var (
	transformLocalFields = [12]string{
		"l00", "l01", "l02", "l03",
		"l10", "l11", "l12", "l13",
		"l20", "l21", "l22", "l23",
	}
	transformWorldFields = [12]string{
		"w00", "w01", "w02", "w03",
		"w10", "w11", "w12", "w13",
		"w20", "w21", "w22", "w23",
	}
	transformInvFields = [12]string{
		"iw00", "iw01", "iw02", "iw03",
		"iw10", "iw11", "iw12", "iw13",
		"iw20", "iw21", "iw22", "iw23",
	}
)

func identityFieldDefs(keys [12]string) []FieldDef {
	defs := make([]FieldDef, 12)
	for i, k := range keys {
		defs[i] = FieldDef{Key: k, Kind: FieldF32, Default: float64(IdentityMat3x4[i])}
	}
	return defs
}

func buildTransformMeta() ComponentMeta {
	fields := make([]FieldDef, 0, 37)
	fields = append(fields, identityFieldDefs(transformLocalFields)...)
	fields = append(fields, identityFieldDefs(transformWorldFields)...)
	fields = append(fields, identityFieldDefs(transformInvFields)...)
	fields = append(fields, FieldDef{Key: "dirty", Kind: FieldI32, Default: 1})
	return MustDefineMeta("Transform", fields)
}

// TransformMeta is the shared schema for every entity's Transform row: 12
// local, 12 world, and 12 inverse-world row-major 3x4 floats, plus a
// dirty flag. New rows default to the identity matrix and start dirty.
var TransformMeta = buildTransformMeta()

func fetchCols(s *ComponentStore, keys [12]string) [12][]float32 {
	var cols [12][]float32
	for i, k := range keys {
		cols[i] = s.F32(k)
	}
	return cols
}

func gatherMat(cols [12][]float32, row int) Mat3x4 {
	var m Mat3x4
	for i := range m {
		m[i] = cols[i][row]
	}
	return m
}

func scatterMat(cols [12][]float32, row int, m Mat3x4) {
	for i := range m {
		cols[i][row] = m[i]
	}
}

// TransformNode is the marker type parameter used to distinguish
// transform-tree node stores from other Tree[N, D] instantiations.
type TransformNode struct{}

func ensureTransformStore(w *World) (*ComponentStore, error) {
	if s, err := w.Store(TransformMeta.Name); err == nil {
		return s, nil
	}
	return w.Register(TransformMeta, defaultStoreCapacity)
}

// TransformTree is a Tree whose members may additionally carry a row in
// the world's shared Transform store. SetParent and Remove are
// overridden so a structural edit never changes a member's world
// transform; only PropagateTransforms advances world/inverse state.
type TransformTree struct {
	*Tree[TransformNode, struct{}]
	transforms *ComponentStore
}

// NewTransformTree builds a hierarchy tree under nodeName (see
// HierarchyMeta) and binds it to the world's shared Transform store,
// registering that store on first use.
//
// It deliberately does not call NewTree: NewTree registers the *Tree
// value itself as the world's hierarchy handler, but Go's embedding
// gives no virtual dispatch from that base type into TransformTree's
// overridden SetParent/Remove. So the base tree is built unregistered,
// and the *TransformTree wrapper is registered in its place, ensuring
// World.DestroyEntitySafe's cascade calls the transform-preserving
// Remove rather than the plain structural one.
func NewTransformTree(w *World, nodeName string) (*TransformTree, error) {
	base, err := newTreeUnregistered[TransformNode, struct{}](w, HierarchyMeta(nodeName), nil, nil)
	if err != nil {
		return nil, err
	}
	transforms, err := ensureTransformStore(w)
	if err != nil {
		return nil, err
	}
	tt := &TransformTree{Tree: base, transforms: transforms}
	if err := w.RegisterHierarchy(nodeName, tt); err != nil {
		return nil, err
	}
	return tt, nil
}

// RehydrateTransformTree is the TreeRehydrator for a tree name known to
// be a TransformTree: it rediscovers the root the same way
// DefaultTreeRehydrator does, but wraps it as a TransformTree bound to
// the world's shared Transform store so the restored tree keeps its
// transform-preserving SetParent/Remove overrides. Register it against
// every TransformTree node name passed to Import's rehydrators map.
func RehydrateTransformTree(w *World, nodeName string) (Hierarchy, error) {
	store, err := w.Store(nodeName)
	if err != nil {
		return nil, err
	}
	root, err := findTreeRoot(store)
	if err != nil {
		return nil, err
	}
	transforms, err := ensureTransformStore(w)
	if err != nil {
		return nil, err
	}

	base := &Tree[TransformNode, struct{}]{world: w, nodeStore: store, root: root}
	w.ProtectEntity(root)
	base.rebuildOrder()

	tt := &TransformTree{Tree: base, transforms: transforms}
	if err := w.RegisterHierarchy(nodeName, tt); err != nil {
		return nil, err
	}
	return tt, nil
}

// Transforms returns the world's shared Transform store.
func (t *TransformTree) Transforms() *ComponentStore { return t.transforms }

// AddTransform gives entity a Transform row seeded with local, marking it
// dirty so the next PropagateTransforms call computes its world and
// inverse-world matrices. entity must already be a member of this tree.
func (t *TransformTree) AddTransform(entity Entity, local Mat3x4) error {
	if !t.IsMember(entity) {
		return fmt.Errorf("scenecore: transform tree %q: entity %d is not a member", t.NodeStore().Meta().Name, entity)
	}
	row := t.transforms.Add(entity, nil)
	scatterMat(fetchCols(t.transforms, transformLocalFields), row, local)
	t.transforms.SetI32(entity, "dirty", 1)
	return nil
}

func (t *TransformTree) worldOf(e Entity) Mat3x4 {
	row := t.transforms.DenseIndexOf(e)
	if row < 0 {
		return IdentityMat3x4
	}
	return gatherMat(fetchCols(t.transforms, transformWorldFields), row)
}

// SetParent overrides Tree.SetParent: before relinking, it recomputes
// entity's local matrix as inverse(parent.world) * entity.world so the
// entity's world transform is unchanged across the reparent, marks the
// row dirty, then performs the ordinary structural relink.
func (t *TransformTree) SetParent(entity, parent Entity) error {
	if parent == NoParent {
		parent = t.Root()
	}

	entityWorldBefore := t.worldOf(entity)
	parentWorldAfter := t.worldOf(parent)

	invParent, err := InvertMat3x4(parentWorldAfter)
	if err != nil {
		return fmt.Errorf("scenecore: transform tree %q: %w", t.NodeStore().Meta().Name, err)
	}
	localPrime := MultiplyRigid3x4(invParent, entityWorldBefore)

	if row := t.transforms.DenseIndexOf(entity); row >= 0 {
		scatterMat(fetchCols(t.transforms, transformLocalFields), row, localPrime)
		t.transforms.SetI32(entity, "dirty", 1)
	}

	return t.Tree.SetParent(entity, parent)
}

// Remove overrides Tree.Remove: every former child is reparented onto
// root via SetParent (preserving its world transform) before entity is
// detached and destroyed.
func (t *TransformTree) Remove(entity Entity) error {
	name := t.NodeStore().Meta().Name
	if entity == t.Root() {
		return fmt.Errorf("scenecore: transform tree %q: cannot remove the root", name)
	}
	if !t.IsMember(entity) {
		return fmt.Errorf("scenecore: transform tree %q: entity %d is not a member", name, entity)
	}

	firstRaw, _ := t.NodeStore().GetI32(entity, fieldFirstChild)
	var children []Entity
	for c := entityOf(firstRaw); c != none; {
		children = append(children, c)
		nextRaw, _ := t.NodeStore().GetI32(c, fieldNextSibling)
		c = entityOf(nextRaw)
	}

	for _, c := range children {
		if err := t.SetParent(c, t.Root()); err != nil {
			return err
		}
	}

	return t.Tree.Remove(entity)
}

// PropagateTransforms recomputes world and inverse-world matrices for
// every TransformTree registered in world, visiting tree roots in
// ascending entity-id order and, within each tree, descending in
// firstChild -> nextSibling order. A node is dirty at entry iff an
// ancestor was dirty or its own dirty column is nonzero; dirty nodes
// recompute world = parent.world * local and clear their dirty flag.
func PropagateTransforms(world *World) {
	var trees []*TransformTree
	world.ForEachTree(func(_ string, h Hierarchy) {
		if tt, ok := h.(*TransformTree); ok {
			trees = append(trees, tt)
		}
	})
	sort.Slice(trees, func(i, j int) bool { return trees[i].Root() < trees[j].Root() })

	for _, tt := range trees {
		propagateOneTree(tt)
	}
}

// propagateOneTree runs the enter/leave DFS described by
// PropagateTransforms for a single tree, using an explicit frame stack
// that carries, per depth, the parent world matrix and the ancestorDirty
// count to restore once that depth's subtree is exhausted.
func propagateOneTree(tt *TransformTree) {
	nodeStore := tt.NodeStore()
	transforms := tt.transforms

	localCols := fetchCols(transforms, transformLocalFields)
	worldCols := fetchCols(transforms, transformWorldFields)
	invCols := fetchCols(transforms, transformInvFields)
	dirtyCol := transforms.I32("dirty")

	type frame struct {
		resumeSibling Entity
		parentWorld   Mat3x4
		ancestorDirty int
	}

	n := nodeStore.Size()
	stepCap := 4*n + 16

	stack := make([]frame, 0, 16)
	node := tt.Root()
	parentWorld := IdentityMat3x4
	ancestorDirty := 0

	for steps := 0; steps < stepCap; steps++ {
		row := transforms.DenseIndexOf(node)
		var nodeWorld Mat3x4
		dirtyAtEntry := ancestorDirty > 0

		if row < 0 {
			nodeWorld = parentWorld
		} else {
			dirtySelf := dirtyCol[row] != 0
			dirtyAtEntry = dirtyAtEntry || dirtySelf

			if !dirtyAtEntry {
				nodeWorld = gatherMat(worldCols, row)
			} else {
				local := gatherMat(localCols, row)
				world := MultiplyRigid3x4(parentWorld, local)
				if inv, err := InvertMat3x4(world); err == nil {
					scatterMat(worldCols, row, world)
					scatterMat(invCols, row, inv)
					dirtyCol[row] = 0
					transforms.TouchRow(row)
					nodeWorld = world
				} else {
					// Singular world transform: leave the stored world and
					// inverse untouched rather than poison the subtree.
					nodeWorld = gatherMat(worldCols, row)
				}
			}
		}

		firstRaw, _ := nodeStore.GetI32(node, fieldFirstChild)
		if entityOf(firstRaw) != none {
			nextRaw, _ := nodeStore.GetI32(node, fieldNextSibling)
			childDirty := ancestorDirty
			if dirtyAtEntry {
				childDirty++
			}
			stack = append(stack, frame{resumeSibling: entityOf(nextRaw), parentWorld: parentWorld, ancestorDirty: ancestorDirty})
			parentWorld = nodeWorld
			ancestorDirty = childDirty
			node = entityOf(firstRaw)
			continue
		}

		nextRaw, _ := nodeStore.GetI32(node, fieldNextSibling)
		next := entityOf(nextRaw)
		for next == none && len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			next = top.resumeSibling
			parentWorld = top.parentWorld
			ancestorDirty = top.ancestorDirty
		}
		if next == none {
			break
		}
		node = next
	}
}
