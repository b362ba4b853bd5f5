package gpu

import (
	"testing"

	scenecore "github.com/phanxgames/scenecore"
)

func TestGpuBridgeRegisterRejectsDuplicateSlot(t *testing.T) {
	b := NewGpuBridge()
	ch := NewTransformsChannel("t")
	provider := func(*scenecore.World) any { return TransformsArgs{} }

	if err := b.Register(0, 0, ch, provider); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := b.Register(0, 0, NewTransformsChannel("t2"), provider); err == nil {
		t.Fatalf("Register into an occupied slot succeeded, want error")
	}
}

func TestGpuBridgeSyncAllCreatesAndFlushesBuffers(t *testing.T) {
	w, tree := newTestTree(t)
	root := tree.Root()
	a := w.CreateEntity()
	tree.NodeStore().Add(a, nil)
	mustSetParentT(t, tree, a, root)
	if err := tree.AddTransform(a, translate(1, 0, 0)); err != nil {
		t.Fatalf("AddTransform: %v", err)
	}
	scenecore.PropagateTransforms(w)

	b := NewGpuBridge()
	ch := NewTransformsChannel("transforms")
	err := b.Register(0, 0, ch, func(w *scenecore.World) any {
		return TransformsArgs{Order: tree.Order(), OrderEpoch: tree.Epoch(), Store: tree.Transforms()}
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	device := &NullDevice{}
	queue := NullQueue{}
	if err := b.SyncAll(w, device, queue); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}

	if len(device.Created) != 1 {
		t.Fatalf("device.Created = %d buffers, want 1", len(device.Created))
	}
	nb := device.Created[0]
	if len(nb.Writes) == 0 {
		t.Fatalf("expected at least one write to the created buffer")
	}

	layout := b.LayoutEntriesFor(0)
	if len(layout) != 1 || layout[0].Binding != 0 {
		t.Fatalf("LayoutEntriesFor(0) = %+v, want one entry at binding 0", layout)
	}

	if _, err := b.BindGroupEntriesFor(0); err == nil {
		t.Fatalf("BindGroupEntriesFor succeeded against a NullBuffer, want error (no real wgpu.Buffer)")
	}

	b.Unregister(0, 0, true)
	if !nb.Destroyed() {
		t.Fatalf("buffer was not destroyed on Unregister(destroyBuffer=true)")
	}
}
