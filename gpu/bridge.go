package gpu

import (
	"fmt"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
	scenecore "github.com/phanxgames/scenecore"
)

// ArgsProvider builds a channel-specific sync argument (a TransformsArgs
// or RenderArgs value) from the current world state. GpuBridge.syncAll
// calls it once per registered channel, every frame.
type ArgsProvider func(w *scenecore.World) any

// Channel is the bridge-facing contract both TransformsChannel and
// RenderChannel satisfy through BaseChannel plus their own sync wrapper.
type Channel interface {
	sync(w *scenecore.World, args any) bool
	createOrResize(device Device) (bool, error)
	flush(queue Queue)
	GpuBuffer() Buffer
	destroyBuffer()
}

func (c *TransformsChannel) sync(_ *scenecore.World, args any) bool {
	return c.Sync(args.(TransformsArgs))
}

func (c *RenderChannel) sync(_ *scenecore.World, args any) bool {
	return c.Sync(args.(RenderArgs))
}

func (c *BaseChannel) destroyBuffer() {
	if c.gpuBuffer != nil {
		c.gpuBuffer.Destroy()
		c.gpuBuffer = nil
	}
}

// slot identifies one bind-group binding.
type slot struct {
	group   int
	binding int
}

type bridgeEntry struct {
	channel      Channel
	argsProvider ArgsProvider
}

// GpuBridge is the registry keyed by (group, binding) described in
// spec.md §4.7: it owns every channel's CPU->GPU sync lifecycle and
// exposes bind-group layout/entry slices built from them.
type GpuBridge struct {
	entries map[slot]bridgeEntry
}

// NewGpuBridge creates an empty bridge.
func NewGpuBridge() *GpuBridge {
	return &GpuBridge{entries: make(map[slot]bridgeEntry)}
}

// Register binds channel at (group, binding), failing if that slot is
// already bound.
func (b *GpuBridge) Register(group, binding int, channel Channel, argsProvider ArgsProvider) error {
	s := slot{group: group, binding: binding}
	if _, exists := b.entries[s]; exists {
		return fmt.Errorf("scenecore/gpu: bridge: slot (group=%d, binding=%d) already registered", group, binding)
	}
	b.entries[s] = bridgeEntry{channel: channel, argsProvider: argsProvider}
	return nil
}

// Unregister removes the binding at (group, binding). If destroyBuffer is
// true, the channel's current GPU buffer (if any) is destroyed first.
func (b *GpuBridge) Unregister(group, binding int, destroyBuffer bool) {
	s := slot{group: group, binding: binding}
	entry, ok := b.entries[s]
	if !ok {
		return
	}
	if destroyBuffer {
		entry.channel.destroyBuffer()
	}
	delete(b.entries, s)
}

func (b *GpuBridge) bindingsInGroup(group int) []int {
	var bindings []int
	for s := range b.entries {
		if s.group == group {
			bindings = append(bindings, s.binding)
		}
	}
	sort.Ints(bindings)
	return bindings
}

// LayoutEntriesFor returns the bind-group-layout entries for group, in
// ascending binding order, each describing a read-only storage buffer
// visible to the compute stage, per spec.md §4.7/§6.
func (b *GpuBridge) LayoutEntriesFor(group int) []wgpu.BindGroupLayoutEntry {
	bindings := b.bindingsInGroup(group)
	out := make([]wgpu.BindGroupLayoutEntry, 0, len(bindings))
	for _, binding := range bindings {
		out = append(out, wgpu.BindGroupLayoutEntry{
			Binding:    uint32(binding),
			Visibility: wgpu.ShaderStageCompute,
			Buffer: wgpu.BufferBindingLayout{
				Type: wgpu.BufferBindingTypeReadOnlyStorage,
			},
		})
	}
	return out
}

// BindGroupEntriesFor returns the bind-group entries for group, in
// ascending binding order, referring to each channel's current GPU
// buffer. It fails if any required buffer does not yet exist (no sync has
// run yet, or the channel is backed by a non-real Buffer such as a
// NullBuffer).
func (b *GpuBridge) BindGroupEntriesFor(group int) ([]wgpu.BindGroupEntry, error) {
	bindings := b.bindingsInGroup(group)
	out := make([]wgpu.BindGroupEntry, 0, len(bindings))
	for _, binding := range bindings {
		entry := b.entries[slot{group: group, binding: binding}]
		buf := entry.channel.GpuBuffer()
		if buf == nil {
			return nil, fmt.Errorf("scenecore/gpu: bridge: slot (group=%d, binding=%d) has no buffer yet", group, binding)
		}
		real := buf.Underlying()
		if real == nil {
			return nil, fmt.Errorf("scenecore/gpu: bridge: slot (group=%d, binding=%d) has no real GPU buffer", group, binding)
		}
		out = append(out, wgpu.BindGroupEntry{
			Binding: uint32(binding),
			Buffer:  real,
			Size:    buf.SizeBytes(),
		})
	}
	return out, nil
}

// SyncAll advances every registered channel: sync from world state,
// create/resize its GPU buffer, then flush dirty rows, in ascending
// (group, binding) order.
func (b *GpuBridge) SyncAll(world *scenecore.World, device Device, queue Queue) error {
	slots := make([]slot, 0, len(b.entries))
	for s := range b.entries {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].group != slots[j].group {
			return slots[i].group < slots[j].group
		}
		return slots[i].binding < slots[j].binding
	})

	for _, s := range slots {
		entry := b.entries[s]
		entry.channel.sync(world, entry.argsProvider(world))
		if _, err := entry.channel.createOrResize(device); err != nil {
			return fmt.Errorf("scenecore/gpu: bridge: slot (group=%d, binding=%d): %w", s.group, s.binding, err)
		}
		entry.channel.flush(queue)
	}
	return nil
}

// Destroy unregisters every slot, destroying each channel's GPU buffer.
func (b *GpuBridge) Destroy() {
	for s, entry := range b.entries {
		entry.channel.destroyBuffer()
		delete(b.entries, s)
	}
}
