package gpu

import "github.com/cogentcore/webgpu/wgpu"

// NullBuffer is a headless stand-in for a real GPU buffer: it records its
// size and every write it receives, but never touches hardware. Underlying
// always returns nil, so code that needs a real *wgpu.Buffer (notably
// GpuBridge.bindGroupEntriesFor) correctly fails against it rather than
// pretending to succeed.
type NullBuffer struct {
	size      uint64
	destroyed bool
	// Writes records every WriteBuffer call this buffer has received, in
	// order, for tests to assert against.
	Writes []NullWrite
}

// NullWrite is one recorded WriteBuffer call against a NullBuffer.
type NullWrite struct {
	OffsetBytes uint64
	Data        []byte
}

func (b *NullBuffer) SizeBytes() uint64        { return b.size }
func (b *NullBuffer) Destroy()                 { b.destroyed = true }
func (b *NullBuffer) Underlying() *wgpu.Buffer { return nil }

// Destroyed reports whether Destroy has been called.
func (b *NullBuffer) Destroyed() bool { return b.destroyed }

// NullDevice is a headless Device: CreateBuffer returns a fresh NullBuffer
// instead of allocating real GPU memory. Grounded on the teacher's
// TestRunner/inject.go pattern of exercising hardware-backed behavior
// through a deterministic, synthetic stand-in.
type NullDevice struct {
	// Created records every buffer this device has handed out, in
	// allocation order, for tests to inspect.
	Created []*NullBuffer
}

// CreateBuffer allocates a NullBuffer, applying the same 4-byte minimum a
// real device enforces.
func (d *NullDevice) CreateBuffer(sizeBytes uint64, label string) (Buffer, error) {
	if sizeBytes < 4 {
		sizeBytes = 4
	}
	b := &NullBuffer{size: sizeBytes}
	d.Created = append(d.Created, b)
	return b, nil
}

// NullQueue is a headless Queue: WriteBuffer records the call on the
// NullBuffer it targets instead of issuing a real GPU upload.
type NullQueue struct{}

// WriteBuffer appends a NullWrite to buffer's history if buffer is a
// *NullBuffer; otherwise it is a no-op.
func (NullQueue) WriteBuffer(buffer Buffer, offsetBytes uint64, data []byte) {
	nb, ok := buffer.(*NullBuffer)
	if !ok {
		return
	}
	cp := append([]byte(nil), data...)
	nb.Writes = append(nb.Writes, NullWrite{OffsetBytes: offsetBytes, Data: cp})
}
