package gpu

import (
	"log"

	scenecore "github.com/phanxgames/scenecore"
)

const renderRowSizeBytes = 64

// RenderArgs is the argument RenderChannel.Sync expects.
type RenderArgs struct {
	Order               []scenecore.Entity
	OrderEpoch          uint64
	ShapeStore          *scenecore.ComponentStore
	OpStore             *scenecore.ComponentStore
	RenderStore         *scenecore.ComponentStore
	TransformStore      *scenecore.ComponentStore
	TransformOrder      []scenecore.Entity
	TransformOrderEpoch uint64
}

type renderRowSnapshot struct {
	shapeVer  uint64
	opVer     uint64
	renderVer uint64
}

// RenderChannel packs a render tree's shapes and operations into 64-byte
// rows, per spec.md §4.9. Row i corresponds to args.Order[i]; entity-id
// links in the render store are resolved to this channel's own row
// indices before packing.
type RenderChannel struct {
	BaseChannel

	haveLastOrder      bool
	lastOrderEpoch     uint64
	lastTransformEpoch uint64
	lastShapeEpoch     uint64
	lastOpEpoch        uint64
	lastRenderEpoch    uint64

	rowOf          map[scenecore.Entity]int
	transformIndex map[scenecore.Entity]int
	rows           []renderRowSnapshot

	loggedTransformFallback bool
}

// NewRenderChannel creates an empty channel; label is used only for the
// GPU buffer's debug name.
func NewRenderChannel(label string) *RenderChannel {
	return &RenderChannel{BaseChannel: BaseChannel{label: label}}
}

func childCount(renderStore *scenecore.ComponentStore, e scenecore.Entity) int {
	firstRaw, ok := renderStore.GetI32(e, "firstChild")
	if !ok || firstRaw == scenecore.NONE {
		return 0
	}
	n := 0
	child := scenecore.Entity(uint32(firstRaw))
	for steps := 0; steps < renderStore.Size()+1; steps++ {
		n++
		nextRaw, ok := renderStore.GetI32(child, "nextSibling")
		if !ok || nextRaw == scenecore.NONE {
			break
		}
		child = scenecore.Entity(uint32(nextRaw))
	}
	return n
}

func (c *RenderChannel) rowIndexOf(raw int32) int32 {
	if raw == scenecore.NONE {
		return -1
	}
	if row, ok := c.rowOf[scenecore.Entity(uint32(raw))]; ok {
		return int32(row)
	}
	return -1
}

// packRow writes row i's full 64 bytes from scratch for entity e, fully
// overwriting any stale kind/payload from a previous sync (spec.md §4.9
// point 4: a kind transition must rewrite the whole row).
func (c *RenderChannel) packRow(args RenderArgs, i int, e scenecore.Entity) renderRowSnapshot {
	var snap renderRowSnapshot

	firstRaw, _ := args.RenderStore.GetI32(e, "firstChild")
	nextRaw, _ := args.RenderStore.GetI32(e, "nextSibling")
	if renderRow := args.RenderStore.DenseIndexOf(e); renderRow >= 0 {
		snap.renderVer = args.RenderStore.RowVersion(renderRow)
	}

	c.setI32(i, 1, c.rowIndexOf(firstRaw))
	c.setI32(i, 2, c.rowIndexOf(nextRaw))
	c.setI32(i, 3, 0)

	switch {
	case args.ShapeStore != nil && args.ShapeStore.Has(e):
		row := args.ShapeStore.DenseIndexOf(e)
		snap.shapeVer = args.ShapeStore.RowVersion(row)
		kind, _ := args.ShapeStore.GetI32(e, "shapeType")
		c.setI32(i, 0, kind)

		transformIdx, ok := c.transformIndex[e]
		if !ok {
			transformIdx = 0
			if !c.loggedTransformFallback {
				log.Printf("scenecore/gpu: render row for entity %d has no transform; falling back to transform index 0", e)
				c.loggedTransformFallback = true
			}
		}
		c.setI32(i, 4, int32(transformIdx))
		materialID, _ := args.ShapeStore.GetI32(e, "materialId")
		c.setI32(i, 5, materialID)
		for p, key := range []string{"p0", "p1", "p2", "p3", "p4", "p5"} {
			v, _ := args.ShapeStore.Get(e, key)
			c.setF32(i, 6+p, float32(v))
		}
		c.setI32(i, 12, 0)
		c.setI32(i, 13, 0)
		c.setI32(i, 14, 0)
		c.setI32(i, 15, 0)

	case args.OpStore != nil && args.OpStore.Has(e):
		row := args.OpStore.DenseIndexOf(e)
		snap.opVer = args.OpStore.RowVersion(row)
		kind, _ := args.OpStore.GetI32(e, "opType")
		c.setI32(i, 0, kind)
		c.setI32(i, 4, int32(childCount(args.RenderStore, e)))
		for lane := 5; lane < 16; lane++ {
			c.setI32(i, lane, 0)
		}

	default:
		c.setI32(i, 0, 0)
		for lane := 4; lane < 16; lane++ {
			c.setI32(i, lane, 0)
		}
	}

	return snap
}

func (c *RenderChannel) rebuildTransformIndex(order []scenecore.Entity) {
	c.transformIndex = make(map[scenecore.Entity]int, len(order))
	for i, e := range order {
		c.transformIndex[e] = i
	}
}

// Sync implements spec.md §4.9: a full rebuild on render-order change, a
// transform-reindex pass on unchanged order but advanced
// transformOrderEpoch, and a per-row rowVersion diff otherwise, with an
// early-out when nothing watched has changed.
func (c *RenderChannel) Sync(args RenderArgs) bool {
	orderChanged := !c.haveLastOrder || len(args.Order) != c.Count() || args.OrderEpoch != c.lastOrderEpoch

	if orderChanged {
		c.ensureCpu(len(args.Order), renderRowSizeBytes)
		c.rowOf = make(map[scenecore.Entity]int, len(args.Order))
		for i, e := range args.Order {
			c.rowOf[e] = i
		}
		c.rebuildTransformIndex(args.TransformOrder)

		c.rows = make([]renderRowSnapshot, len(args.Order))
		for i, e := range args.Order {
			c.rows[i] = c.packRow(args, i, e)
		}

		c.markAllDirty()
		c.haveLastOrder = true
		c.lastOrderEpoch = args.OrderEpoch
		c.lastTransformEpoch = args.TransformOrderEpoch
		c.lastShapeEpoch = storeEpochOrZero(args.ShapeStore)
		c.lastOpEpoch = storeEpochOrZero(args.OpStore)
		c.lastRenderEpoch = storeEpochOrZero(args.RenderStore)
		return true
	}

	if args.TransformOrderEpoch != c.lastTransformEpoch {
		c.rebuildTransformIndex(args.TransformOrder)
		for i, e := range args.Order {
			if args.ShapeStore != nil && args.ShapeStore.Has(e) {
				c.rows[i] = c.packRow(args, i, e)
				c.markRowDirty(i)
			}
		}
		c.lastTransformEpoch = args.TransformOrderEpoch
		return true
	}

	shapeEpoch := storeEpochOrZero(args.ShapeStore)
	opEpoch := storeEpochOrZero(args.OpStore)
	renderEpoch := storeEpochOrZero(args.RenderStore)
	if shapeEpoch == c.lastShapeEpoch && opEpoch == c.lastOpEpoch && renderEpoch == c.lastRenderEpoch {
		return false
	}

	changed := false
	for i, e := range args.Order {
		next := renderRowSnapshotFor(args, e)
		if next != c.rows[i] {
			c.rows[i] = c.packRow(args, i, e)
			c.markRowDirty(i)
			changed = true
		}
	}
	c.lastShapeEpoch = shapeEpoch
	c.lastOpEpoch = opEpoch
	c.lastRenderEpoch = renderEpoch
	return changed
}

func renderRowSnapshotFor(args RenderArgs, e scenecore.Entity) renderRowSnapshot {
	var snap renderRowSnapshot
	if args.ShapeStore != nil {
		if row := args.ShapeStore.DenseIndexOf(e); row >= 0 {
			snap.shapeVer = args.ShapeStore.RowVersion(row)
		}
	}
	if args.OpStore != nil {
		if row := args.OpStore.DenseIndexOf(e); row >= 0 {
			snap.opVer = args.OpStore.RowVersion(row)
		}
	}
	if args.RenderStore != nil {
		if row := args.RenderStore.DenseIndexOf(e); row >= 0 {
			snap.renderVer = args.RenderStore.RowVersion(row)
		}
	}
	return snap
}

func storeEpochOrZero(s *scenecore.ComponentStore) uint64 {
	if s == nil {
		return 0
	}
	return s.StoreEpoch()
}
