package scenecore

import "fmt"

const (
	fieldParent      = "parent"
	fieldFirstChild  = "firstChild"
	fieldLastChild   = "lastChild"
	fieldNextSibling = "nextSibling"
	fieldPrevSibling = "prevSibling"
)

// NoParent, passed to Tree.SetParent, means "attach directly under the
// tree's root" — the Go-typed form of the link-column sentinel NONE.
var NoParent = entityOf(NONE)

// none is the Entity-typed form of the NONE sentinel, used internally
// wherever a raw i32 link value is compared after widening.
var none = entityOf(NONE)

func entityOf(raw int32) Entity { return Entity(uint32(raw)) }

// Tree is a single-rooted hierarchy layered over a node meta satisfying
// the hierarchy schema and, optionally, a data meta sharing row 0 with
// the root. N and D are marker type parameters: they carry no runtime
// value and exist only so that distinct trees (a scene graph versus a
// skeleton, say) are distinct Go types at the call site, even though the
// walk beneath them operates on raw entity ids and dense rows exactly as
// described by the underlying stores.
type Tree[N, D any] struct {
	world *World

	nodeStore *ComponentStore
	dataStore *ComponentStore // nil when the tree has no data meta

	root  Entity
	order []Entity
	epoch uint64
}

// acquireEmptyStore returns the store already registered under meta.Name
// if it is empty, registers a fresh one if none exists, or fails if a
// non-empty store already occupies that name.
func acquireEmptyStore(w *World, meta ComponentMeta, initialCapacity int) (*ComponentStore, error) {
	if existing, err := w.Store(meta.Name); err == nil {
		if existing.Size() != 0 {
			return nil, fmt.Errorf("scenecore: tree %q: component store is already registered and non-empty", meta.Name)
		}
		return existing, nil
	}
	return w.Register(meta, initialCapacity)
}

// newTreeUnregistered builds and populates a Tree (root entity, protected,
// initial DFS order) but does not register it as w's hierarchy handler.
// Plain Tree construction registers itself immediately afterward;
// TransformTree (and any other type that embeds Tree to override its
// behavior) must instead register the *wrapping* type, since Go's
// embedding does not give the base type virtual dispatch into the
// wrapper's overridden methods.
func newTreeUnregistered[N, D any](w *World, nodeMeta ComponentMeta, dataMeta *ComponentMeta, dataDefaults map[string]float64) (*Tree[N, D], error) {
	if !IsHierarchyMeta(nodeMeta) {
		return nil, fmt.Errorf("scenecore: tree %q: node meta is not a hierarchy schema", nodeMeta.Name)
	}

	nodeStore, err := acquireEmptyStore(w, nodeMeta, defaultStoreCapacity)
	if err != nil {
		return nil, err
	}

	var dataStore *ComponentStore
	if dataMeta != nil {
		dataStore, err = acquireEmptyStore(w, *dataMeta, defaultStoreCapacity)
		if err != nil {
			return nil, err
		}
	}

	t := &Tree[N, D]{world: w, nodeStore: nodeStore, dataStore: dataStore}

	root := w.CreateEntity()
	if row := nodeStore.Add(root, nil); row != 0 {
		return nil, fmt.Errorf("scenecore: tree %q: root landed on row %d, want 0", nodeMeta.Name, row)
	}
	if dataStore != nil {
		if row := dataStore.Add(root, dataDefaults); row != 0 {
			return nil, fmt.Errorf("scenecore: tree %q: data root landed on row %d, want 0", dataMeta.Name, row)
		}
	}
	t.root = root

	w.ProtectEntity(root)
	t.rebuildOrder()
	return t, nil
}

// NewTree registers nodeMeta (and dataMeta, if non-nil) into w, creates
// the root entity at row 0 of both stores, protects it, registers the
// tree as w's hierarchy handler for nodeMeta.Name, and computes the
// initial DFS order. It fails if nodeMeta is not a hierarchy schema, or
// if either store is already registered and non-empty.
func NewTree[N, D any](w *World, nodeMeta ComponentMeta, dataMeta *ComponentMeta, dataDefaults map[string]float64) (*Tree[N, D], error) {
	t, err := newTreeUnregistered[N, D](w, nodeMeta, dataMeta, dataDefaults)
	if err != nil {
		return nil, err
	}
	if err := w.RegisterHierarchy(nodeMeta.Name, t); err != nil {
		return nil, err
	}
	return t, nil
}

// World returns the tree's owning World.
func (t *Tree[N, D]) World() *World { return t.world }

// NodeStore returns the store backing this tree's hierarchy columns.
func (t *Tree[N, D]) NodeStore() *ComponentStore { return t.nodeStore }

// DataStore returns the store backing the root's data row, or nil if the
// tree was built without a data meta.
func (t *Tree[N, D]) DataStore() *ComponentStore { return t.dataStore }

// Root returns the tree's protected root entity.
func (t *Tree[N, D]) Root() Entity { return t.root }

// Epoch returns the tree's structural-edit counter.
func (t *Tree[N, D]) Epoch() uint64 { return t.epoch }

// IsMember reports whether e has a row in this tree's node store.
func (t *Tree[N, D]) IsMember(e Entity) bool { return t.nodeStore.Has(e) }

// ParentOf returns e's parent, or (NoParent, false) if e is the root or
// not a member.
func (t *Tree[N, D]) ParentOf(e Entity) (Entity, bool) {
	raw, ok := t.nodeStore.GetI32(e, fieldParent)
	if !ok || raw == NONE {
		return NoParent, false
	}
	return entityOf(raw), true
}

// Order returns a copy of the cached depth-first preorder, starting at
// the root.
func (t *Tree[N, D]) Order() []Entity {
	out := make([]Entity, len(t.order))
	copy(out, t.order)
	return out
}

// isDescendantOf reports whether candidate's ancestor chain passes
// through ancestor before reaching root. It walks with a slow pointer
// advancing one link per step and a fast pointer advancing two, bounded
// by the store's size, so that a corrupted (cyclic) parent chain cannot
// make the walk loop forever.
func (t *Tree[N, D]) isDescendantOf(candidate, ancestor Entity) bool {
	limit := t.nodeStore.Size() + 2
	slow, fast := candidate, candidate
	for steps := 0; steps < limit; steps++ {
		if slow == ancestor {
			return true
		}
		if slow == t.root {
			return false
		}
		sp, ok := t.nodeStore.GetI32(slow, fieldParent)
		if !ok || sp == NONE {
			return false
		}
		slow = entityOf(sp)

		for i := 0; i < 2 && fast != t.root; i++ {
			fp, ok := t.nodeStore.GetI32(fast, fieldParent)
			if !ok || fp == NONE {
				return false
			}
			fast = entityOf(fp)
		}
		if fast == slow && fast != candidate {
			return false // corrupted cyclic chain; bounded walk gives up
		}
	}
	return false
}

// detachFromParent splices entity out of its current parent's child
// list in O(1), leaving entity's own link fields cleared to NONE. A
// no-op if entity currently has no parent.
func (t *Tree[N, D]) detachFromParent(entity Entity) {
	parentRaw, _ := t.nodeStore.GetI32(entity, fieldParent)
	if parentRaw == NONE {
		return
	}
	parent := entityOf(parentRaw)
	prevRaw, _ := t.nodeStore.GetI32(entity, fieldPrevSibling)
	nextRaw, _ := t.nodeStore.GetI32(entity, fieldNextSibling)

	if prevRaw != NONE {
		t.nodeStore.SetI32(entityOf(prevRaw), fieldNextSibling, nextRaw)
	} else {
		t.nodeStore.SetI32(parent, fieldFirstChild, nextRaw)
	}
	if nextRaw != NONE {
		t.nodeStore.SetI32(entityOf(nextRaw), fieldPrevSibling, prevRaw)
	} else {
		t.nodeStore.SetI32(parent, fieldLastChild, prevRaw)
	}

	t.nodeStore.SetI32(entity, fieldParent, NONE)
	t.nodeStore.SetI32(entity, fieldPrevSibling, NONE)
	t.nodeStore.SetI32(entity, fieldNextSibling, NONE)
}

// appendChildAtEnd links entity as parent's new last child in O(1).
func (t *Tree[N, D]) appendChildAtEnd(parent, entity Entity) {
	lastRaw, _ := t.nodeStore.GetI32(parent, fieldLastChild)

	t.nodeStore.SetI32(entity, fieldParent, int32(parent))
	t.nodeStore.SetI32(entity, fieldPrevSibling, lastRaw)
	t.nodeStore.SetI32(entity, fieldNextSibling, NONE)

	if lastRaw == NONE {
		t.nodeStore.SetI32(parent, fieldFirstChild, int32(entity))
	} else {
		t.nodeStore.SetI32(entityOf(lastRaw), fieldNextSibling, int32(entity))
	}
	t.nodeStore.SetI32(parent, fieldLastChild, int32(entity))
}

// SetParent relinks entity under parent, coercing NoParent to the
// tree's root. It fails if entity is the root, if entity is not a
// member, if parent is neither root nor a member, or if parent is
// currently a descendant of entity (which would create a cycle). It is
// a no-op if parent is already entity's current parent.
func (t *Tree[N, D]) SetParent(entity, parent Entity) error {
	name := t.nodeStore.Meta().Name
	if entity == t.root {
		return fmt.Errorf("scenecore: tree %q: cannot reparent the root", name)
	}
	if !t.nodeStore.Has(entity) {
		return fmt.Errorf("scenecore: tree %q: entity %d is not a member", name, entity)
	}
	if parent == NoParent {
		parent = t.root
	}
	if parent != t.root && !t.nodeStore.Has(parent) {
		return fmt.Errorf("scenecore: tree %q: parent %d is neither root nor a member", name, parent)
	}
	if t.isDescendantOf(parent, entity) {
		return fmt.Errorf("scenecore: tree %q: %d is an ancestor of %d; reparenting would create a cycle", name, entity, parent)
	}

	if currentRaw, ok := t.nodeStore.GetI32(entity, fieldParent); ok && currentRaw != NONE && entityOf(currentRaw) == parent {
		return nil
	}

	t.detachFromParent(entity)
	t.appendChildAtEnd(parent, entity)

	t.epoch++
	t.rebuildOrder()
	return nil
}

// spliceChildrenOntoRoot appends the child chain [first, last] (already
// linked via nextSibling) onto the end of root's own child list,
// updating every spliced child's parent pointer to root.
func (t *Tree[N, D]) spliceChildrenOntoRoot(first, last Entity) {
	rootLastRaw, _ := t.nodeStore.GetI32(t.root, fieldLastChild)

	for c := first; ; {
		t.nodeStore.SetI32(c, fieldParent, int32(t.root))
		if c == last {
			break
		}
		nextRaw, _ := t.nodeStore.GetI32(c, fieldNextSibling)
		c = entityOf(nextRaw)
	}

	t.nodeStore.SetI32(first, fieldPrevSibling, rootLastRaw)
	if rootLastRaw == NONE {
		t.nodeStore.SetI32(t.root, fieldFirstChild, int32(first))
	} else {
		t.nodeStore.SetI32(entityOf(rootLastRaw), fieldNextSibling, int32(first))
	}
	t.nodeStore.SetI32(t.root, fieldLastChild, int32(last))
}

// Remove detaches entity from its parent, promotes its former children
// to the end of root's child list (preserving their relative order),
// drops entity's own rows from this tree's stores, and finishes
// destroying entity via the world (without re-entering this tree). It
// fails on the root.
func (t *Tree[N, D]) Remove(entity Entity) error {
	name := t.nodeStore.Meta().Name
	if entity == t.root {
		return fmt.Errorf("scenecore: tree %q: cannot remove the root", name)
	}
	if !t.nodeStore.Has(entity) {
		return fmt.Errorf("scenecore: tree %q: entity %d is not a member", name, entity)
	}

	firstRaw, _ := t.nodeStore.GetI32(entity, fieldFirstChild)
	lastRaw, _ := t.nodeStore.GetI32(entity, fieldLastChild)

	t.detachFromParent(entity)
	if firstRaw != NONE {
		t.spliceChildrenOntoRoot(entityOf(firstRaw), entityOf(lastRaw))
	}

	t.nodeStore.Remove(entity)
	if t.dataStore != nil {
		t.dataStore.Remove(entity)
	}

	if err := t.world.DestroyEntitySafe(entity, false); err != nil {
		return err
	}

	t.epoch++
	t.rebuildOrder()
	return nil
}

// findTreeRoot locates the single row in store with no parent link —
// the root, which is never itself given a parent. Used by save/load
// rehydration, where only the node store's column data survives the
// round-trip and the tree's root field must be rediscovered from it.
func findTreeRoot(store *ComponentStore) (Entity, error) {
	root := NoParent
	found := false
	for row := 0; row < store.Size(); row++ {
		e := store.EntityAt(row)
		if raw, ok := store.GetI32(e, fieldParent); ok && raw == NONE {
			if found {
				return NoParent, fmt.Errorf("scenecore: rehydrate %q: more than one row has no parent", store.Meta().Name)
			}
			root, found = e, true
		}
	}
	if !found {
		return NoParent, fmt.Errorf("scenecore: rehydrate %q: no root (parentless row) found", store.Meta().Name)
	}
	return root, nil
}

// DefaultTreeRehydrator rebuilds a plain Tree[struct{}, struct{}] (no
// data store) around nodeName's already-restored node store: it
// rediscovers the root via findTreeRoot, re-protects it, recomputes the
// cached DFS order, and registers the result as the world's hierarchy
// handler for nodeName. It is the Import fallback for any tree name that
// has no more specific rehydrator (e.g. [RehydrateTransformTree])
// registered for it.
func DefaultTreeRehydrator(w *World, nodeName string) (Hierarchy, error) {
	store, err := w.Store(nodeName)
	if err != nil {
		return nil, err
	}
	root, err := findTreeRoot(store)
	if err != nil {
		return nil, err
	}
	t := &Tree[struct{}, struct{}]{world: w, nodeStore: store, root: root}
	w.ProtectEntity(root)
	t.rebuildOrder()
	if err := w.RegisterHierarchy(nodeName, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Dispose unregisters the tree as a hierarchy and unprotects its root.
// It does not destroy the root or any member entity.
func (t *Tree[N, D]) Dispose() {
	t.world.UnregisterHierarchy(t.nodeStore.Meta().Name)
	t.world.UnprotectEntity(t.root)
}

// rebuildOrder recomputes the cached DFS preorder with an iterative
// enter/leave walk: a cursor stack holds, per depth, the sibling to
// resume at once that level's subtree is exhausted. The walk is capped
// at 4*size+16 steps so a corrupted intrusive list terminates with a
// partial order instead of looping forever.
func (t *Tree[N, D]) rebuildOrder() {
	n := t.nodeStore.Size()
	stepCap := 4*n + 16

	order := make([]Entity, 0, n)
	cursors := make([]Entity, 0, 16)

	node := t.root
	for steps := 0; steps < stepCap; steps++ {
		order = append(order, node)

		firstRaw, _ := t.nodeStore.GetI32(node, fieldFirstChild)
		if entityOf(firstRaw) != none {
			nextRaw, _ := t.nodeStore.GetI32(node, fieldNextSibling)
			cursors = append(cursors, entityOf(nextRaw))
			node = entityOf(firstRaw)
			continue
		}

		nextRaw, _ := t.nodeStore.GetI32(node, fieldNextSibling)
		next := entityOf(nextRaw)
		for next == none && len(cursors) > 0 {
			next = cursors[len(cursors)-1]
			cursors = cursors[:len(cursors)-1]
		}
		if next == none {
			break
		}
		node = next
	}

	t.order = order
}
