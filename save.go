package scenecore

import (
	"encoding/json"
	"fmt"
	"sort"
)

// allocatorSnapshot is the JSON-compatible mirror of EntityAllocator's
// internal bookkeeping, field-for-field as spec.md's Save/Load format.
type allocatorSnapshot struct {
	Dense       []Entity `json:"dense"`
	Sparse      []int32  `json:"sparse"`
	Free        []Entity `json:"free"`
	NextID      Entity   `json:"nextId"`
	EntityEpoch []uint32 `json:"entityEpoch"`
}

// componentSnapshot is the JSON-compatible mirror of one ComponentStore.
// Fields holds every column as a plain number array, keyed by field key;
// link-flagged columns are remapped by Export when densifying.
type componentSnapshot struct {
	Name          string               `json:"name"`
	Size          int                  `json:"size"`
	Capacity      int                  `json:"capacity"`
	StoreEpoch    uint64               `json:"storeEpoch"`
	EntityToDense []int32              `json:"entityToDense"`
	DenseToEntity []Entity             `json:"denseToEntity"`
	RowVersion    []uint64             `json:"rowVersion"`
	Fields        map[string][]float64 `json:"fields"`
}

// WorldSnapshot is the logical Save/Load payload described by spec.md
// §6: marshal/unmarshal it directly with encoding/json to get the wire
// format, and pass it to Export/Import to move it in and out of a World.
type WorldSnapshot struct {
	Allocator    allocatorSnapshot            `json:"allocator"`
	Components   map[string]componentSnapshot `json:"components"`
	ProtectedIDs []Entity                     `json:"protectedIds"`
	Trees        []string                     `json:"trees"`
}

// MarshalJSON-compatible helpers: WorldSnapshot is plain data, so the
// stdlib encoding/json Marshal/Unmarshal functions operate on it
// directly; no custom (Un)MarshalJSON methods are needed.

// computeDensifyBijection assigns new ids 0..len(live)-1 to live, in
// ascending order of the original id, and returns the old->new mapping.
func computeDensifyBijection(live []Entity) map[Entity]Entity {
	sorted := append([]Entity(nil), live...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	bijection := make(map[Entity]Entity, len(sorted))
	for i, old := range sorted {
		bijection[old] = Entity(i)
	}
	return bijection
}

func remapLink(v float64, bijection map[Entity]Entity) float64 {
	iv := int32(v)
	if iv < 0 {
		return v
	}
	if newID, ok := bijection[Entity(uint32(iv))]; ok {
		return float64(newID)
	}
	return v
}

// snapshotStore captures store's full state as a componentSnapshot. When
// bijection is non-nil, every entity id the snapshot carries — dense/
// sparse positions and link-flagged field values alike — is rewritten
// through it, per spec.md §4.10's densifying export.
func snapshotStore(s *ComponentStore, bijection map[Entity]Entity) componentSnapshot {
	out := componentSnapshot{
		Name:       s.meta.Name,
		Size:       s.size,
		Capacity:   s.capacity,
		StoreEpoch: s.storeEpoch,
		RowVersion: append([]uint64(nil), s.rowVersion[:s.size]...),
		Fields:     make(map[string][]float64, len(s.meta.Fields)),
	}

	if bijection == nil {
		out.EntityToDense = append([]int32(nil), s.entityToDense...)
		out.DenseToEntity = append([]Entity(nil), s.denseToEntity[:s.size]...)
	} else {
		out.DenseToEntity = make([]Entity, s.size)
		for row := 0; row < s.size; row++ {
			out.DenseToEntity[row] = bijection[s.denseToEntity[row]]
		}
		out.EntityToDense = make([]int32, len(bijection))
		for i := range out.EntityToDense {
			out.EntityToDense[i] = -1
		}
		for row, e := range out.DenseToEntity {
			out.EntityToDense[e] = int32(row)
		}
	}

	for i, f := range s.meta.Fields {
		col := &s.columns[i]
		values := make([]float64, s.size)
		for row := 0; row < s.size; row++ {
			v := col.get(row)
			if f.Link && bijection != nil {
				v = remapLink(v, bijection)
			}
			values[row] = v
		}
		out.Fields[f.Key] = values
	}

	return out
}

// Export snapshots w into a WorldSnapshot. When densify is true, live
// entity ids are rewritten to the dense range [0, liveCount) in
// ascending original-id order, the allocator's free list is emptied and
// its nextId set to liveCount, and every link-flagged column (plus the
// protected-id set) is remapped through the same bijection. See
// spec.md §4.10.
func Export(w *World, densify bool) WorldSnapshot {
	var bijection map[Entity]Entity
	if densify {
		bijection = computeDensifyBijection(w.allocator.dense)
	}

	snap := WorldSnapshot{
		Components: make(map[string]componentSnapshot, len(w.storeOrder)),
	}

	if bijection != nil {
		size := len(bijection)
		dense := make([]Entity, size)
		sparse := make([]int32, size)
		for i := range dense {
			dense[i] = Entity(i)
			sparse[i] = int32(i)
		}
		snap.Allocator = allocatorSnapshot{
			Dense:       dense,
			Sparse:      sparse,
			Free:        []Entity{},
			NextID:      Entity(size),
			EntityEpoch: make([]uint32, size),
		}
	} else {
		snap.Allocator = allocatorSnapshot{
			Dense:       append([]Entity(nil), w.allocator.dense...),
			Sparse:      append([]int32(nil), w.allocator.sparse...),
			Free:        append([]Entity(nil), w.allocator.free...),
			NextID:      w.allocator.nextID,
			EntityEpoch: append([]uint32(nil), w.allocator.entityEpoch...),
		}
	}

	for _, name := range w.storeOrder {
		snap.Components[name] = snapshotStore(w.stores[name], bijection)
	}

	for id := range w.protected {
		out := id
		if bijection != nil {
			out = bijection[id]
		}
		snap.ProtectedIDs = append(snap.ProtectedIDs, out)
	}
	sort.Slice(snap.ProtectedIDs, func(i, j int) bool { return snap.ProtectedIDs[i] < snap.ProtectedIDs[j] })

	snap.Trees = append(snap.Trees, w.treeOrder...)

	return snap
}

// restoreStore overwrites s's entire internal state from cs, failing if
// cs is missing a field the store's meta requires.
func restoreStore(s *ComponentStore, cs componentSnapshot) error {
	for _, f := range s.meta.Fields {
		if _, ok := cs.Fields[f.Key]; !ok {
			return fmt.Errorf("snapshot is missing field %q", f.Key)
		}
	}
	if len(cs.DenseToEntity) != cs.Size {
		return fmt.Errorf("denseToEntity length %d does not match size %d", len(cs.DenseToEntity), cs.Size)
	}

	if cs.Capacity > s.capacity {
		s.growRowsTo(cs.Capacity)
	}
	s.size = cs.Size
	s.storeEpoch = cs.StoreEpoch
	s.entityToDense = append([]int32(nil), cs.EntityToDense...)
	s.denseToEntity = append([]Entity(nil), cs.DenseToEntity...)

	for row := 0; row < cs.Size; row++ {
		if row < len(cs.RowVersion) {
			s.rowVersion[row] = cs.RowVersion[row]
		}
	}

	for i, f := range s.meta.Fields {
		values := cs.Fields[f.Key]
		for row := 0; row < cs.Size && row < len(values); row++ {
			s.columns[i].set(row, values[row])
		}
	}

	return nil
}

// TreeRehydrator reconstructs a tree's runtime wrapper (Tree or
// TransformTree) around an already-restored node store, registering it
// as the world's hierarchy handler exactly as New*Tree would. Import
// calls the rehydrator registered under a tree's name, falling back to
// defaultRehydrator (typically [DefaultTreeRehydrator]) when none is.
type TreeRehydrator func(w *World, nodeName string) (Hierarchy, error)

// Import restores snap into w, which must not yet contain any entities.
// Every component snap names must already be registered in w with a
// matching meta; components registered in w but absent from snap are
// left empty. For each tree name in snap.Trees, Import calls
// rehydrators[name] if present, else defaultRehydrator; if both are nil
// for a given name, Import fails. See spec.md §4.10.
func Import(w *World, snap WorldSnapshot, rehydrators map[string]TreeRehydrator, defaultRehydrator TreeRehydrator) error {
	if w.allocator.Len() != 0 {
		return fmt.Errorf("scenecore: import into world %q: world already has entities", w.name)
	}

	w.allocator.dense = append([]Entity(nil), snap.Allocator.Dense...)
	w.allocator.sparse = append([]int32(nil), snap.Allocator.Sparse...)
	w.allocator.free = append([]Entity(nil), snap.Allocator.Free...)
	w.allocator.nextID = snap.Allocator.NextID
	w.allocator.entityEpoch = append([]uint32(nil), snap.Allocator.EntityEpoch...)

	for name, cs := range snap.Components {
		store, err := w.Store(name)
		if err != nil {
			return fmt.Errorf("scenecore: import into world %q: %w", w.name, err)
		}
		if err := restoreStore(store, cs); err != nil {
			return fmt.Errorf("scenecore: import into world %q: component %q: %w", w.name, name, err)
		}
	}

	w.protected = make(map[Entity]bool, len(snap.ProtectedIDs))
	for _, id := range snap.ProtectedIDs {
		w.protected[id] = true
	}

	for _, name := range snap.Trees {
		rehydrate := rehydrators[name]
		if rehydrate == nil {
			rehydrate = defaultRehydrator
		}
		if rehydrate == nil {
			return fmt.Errorf("scenecore: import into world %q: tree %q has no rehydrator and no default was set", w.name, name)
		}
		if _, err := rehydrate(w, name); err != nil {
			return fmt.Errorf("scenecore: import into world %q: tree %q: %w", w.name, name, err)
		}
	}

	return nil
}

// MarshalSnapshot renders snap as the JSON document spec.md §6 describes.
func MarshalSnapshot(snap WorldSnapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// UnmarshalSnapshot parses data as a WorldSnapshot.
func UnmarshalSnapshot(data []byte) (WorldSnapshot, error) {
	var snap WorldSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return WorldSnapshot{}, fmt.Errorf("scenecore: unmarshal snapshot: %w", err)
	}
	return snap, nil
}
