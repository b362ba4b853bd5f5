// Package gpu wires scenecore's transform and render hierarchies to a real
// WebGPU device: a registry of storage buffers (GpuBridge) and two
// concrete channels that pack scene state into those buffers.
package gpu

import "github.com/cogentcore/webgpu/wgpu"

// Buffer is the subset of *wgpu.Buffer a channel needs: enough to size,
// destroy, and (for a real buffer) hand to a bind-group-entries call.
// NullBuffer (nulldevice.go) satisfies this without ever touching a GPU,
// for headless testing of everything except bindGroupEntriesFor, which
// spec.md §6 commits to returning literal *wgpu.Buffer references and so
// cannot be exercised without a live device.
type Buffer interface {
	SizeBytes() uint64
	Destroy()
	// Underlying returns the real *wgpu.Buffer backing this value, or nil
	// if none exists (a NullBuffer, or a real buffer not yet created).
	Underlying() *wgpu.Buffer
}

// Queue is the subset of *wgpu.Queue a channel needs to flush dirty
// ranges.
type Queue interface {
	WriteBuffer(buffer Buffer, offsetBytes uint64, data []byte)
}

// Device is the subset of *wgpu.Device a channel needs to allocate the
// storage buffers it owns.
type Device interface {
	CreateBuffer(sizeBytes uint64, label string) (Buffer, error)
}

// WgpuDevice adapts a real *wgpu.Device to Device, allocating buffers with
// the CopyDst|Storage usage every channel in this package needs: writable
// by the queue, readable as a storage buffer in a compute bind group.
type WgpuDevice struct {
	Device *wgpu.Device
}

// CreateBuffer allocates a real GPU buffer of at least sizeBytes, rounding
// up to the 4-byte minimum spec.md §6 requires for a zero-row channel.
func (d WgpuDevice) CreateBuffer(sizeBytes uint64, label string) (Buffer, error) {
	if sizeBytes < 4 {
		sizeBytes = 4
	}
	buf, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  sizeBytes,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageStorage,
	})
	if err != nil {
		return nil, err
	}
	return wgpuBuffer{buf: buf, size: sizeBytes}, nil
}

type wgpuBuffer struct {
	buf  *wgpu.Buffer
	size uint64
}

func (b wgpuBuffer) SizeBytes() uint64        { return b.size }
func (b wgpuBuffer) Destroy()                 { b.buf.Destroy() }
func (b wgpuBuffer) Underlying() *wgpu.Buffer { return b.buf }

// WgpuQueue adapts a real *wgpu.Queue to Queue.
type WgpuQueue struct {
	Queue *wgpu.Queue
}

// WriteBuffer issues a real queue write. It is a no-op if buffer is not a
// real wgpuBuffer (e.g. a NullBuffer reached a real queue by mistake).
func (q WgpuQueue) WriteBuffer(buffer Buffer, offsetBytes uint64, data []byte) {
	real := buffer.Underlying()
	if real == nil {
		return
	}
	q.Queue.WriteBuffer(real, offsetBytes, data)
}
