package gpu

import scenecore "github.com/phanxgames/scenecore"

const transformsRowSizeBytes = 48

// invWorldFieldKeys names the 12 scalar columns of scenecore.TransformMeta
// holding the inverse-world 3x4 matrix, in the row-major order
// TransformsChannel packs them.
var invWorldFieldKeys = [12]string{
	"iw00", "iw01", "iw02", "iw03",
	"iw10", "iw11", "iw12", "iw13",
	"iw20", "iw21", "iw22", "iw23",
}

// TransformsArgs is the argument TransformsChannel.Sync expects, typically
// produced by a GpuBridge entry's ArgsProvider from a TransformTree.
type TransformsArgs struct {
	Order      []scenecore.Entity
	OrderEpoch uint64
	Store      *scenecore.ComponentStore
}

// TransformsChannel packs the inverse-world 3x4 matrix of every entity in
// a transform tree's DFS order into 48-byte rows, per spec.md §4.8.
type TransformsChannel struct {
	BaseChannel

	lastOrderEpoch uint64
	lastStoreEpoch uint64
	haveLastOrder  bool
	lastRowVersion []uint64
}

// NewTransformsChannel creates an empty channel; label is used only for
// the GPU buffer's debug name.
func NewTransformsChannel(label string) *TransformsChannel {
	return &TransformsChannel{BaseChannel: BaseChannel{label: label}}
}

func (c *TransformsChannel) packRow(store *scenecore.ComponentStore, row int, e scenecore.Entity) {
	denseRow := store.DenseIndexOf(e)
	if denseRow < 0 {
		for lane := 0; lane < 12; lane++ {
			c.setF32(row, lane, 0)
		}
		return
	}
	for lane, key := range invWorldFieldKeys {
		col := store.F32(key)
		c.setF32(row, lane, col[denseRow])
	}
}

// Sync implements spec.md §4.8's three-way sync: a full repack on order
// change, an early-out when the store is untouched, or an incremental
// per-row repack driven by rowVersion otherwise.
func (c *TransformsChannel) Sync(args TransformsArgs) bool {
	orderChanged := !c.haveLastOrder || len(args.Order) != c.Count() || args.OrderEpoch != c.lastOrderEpoch

	if orderChanged {
		c.ensureCpu(len(args.Order), transformsRowSizeBytes)
		c.lastRowVersion = make([]uint64, len(args.Order))
		for i, e := range args.Order {
			c.packRow(args.Store, i, e)
			if args.Store.DenseIndexOf(e) >= 0 {
				c.lastRowVersion[i] = args.Store.RowVersion(args.Store.DenseIndexOf(e))
			}
		}
		c.markAllDirty()
		c.lastOrderEpoch = args.OrderEpoch
		c.lastStoreEpoch = args.Store.StoreEpoch()
		c.haveLastOrder = true
		return true
	}

	if args.Store.StoreEpoch() == c.lastStoreEpoch {
		return false
	}

	changed := false
	for i, e := range args.Order {
		denseRow := args.Store.DenseIndexOf(e)
		if denseRow < 0 {
			continue
		}
		v := args.Store.RowVersion(denseRow)
		if v > c.lastRowVersion[i] {
			c.packRow(args.Store, i, e)
			c.markRowDirty(i)
			c.lastRowVersion[i] = v
			changed = true
		}
	}
	c.lastStoreEpoch = args.Store.StoreEpoch()
	return changed
}
