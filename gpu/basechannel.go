package gpu

import (
	"encoding/binary"
	"math"
	"sort"
)

// dirtyRange is an inclusive row range, [start, end], awaiting upload.
type dirtyRange struct {
	start, end int
}

// BaseChannel is the shared CPU-buffer/dirty-tracking/GPU-buffer plumbing
// both TransformsChannel and RenderChannel embed. Its CPU buffer is a flat
// byte slice sliced into fixed-size rows; concrete channels read and write
// individual float32/int32 lanes within a row through setF32/setI32/
// getF32/getI32 rather than touching the byte slice directly.
type BaseChannel struct {
	label        string
	rowSizeBytes int
	count        int
	cpu          []byte
	dirty        []dirtyRange

	gpuBuffer Buffer
}

// Count returns the number of rows the CPU buffer currently holds.
func (c *BaseChannel) Count() int { return c.count }

// GpuBuffer returns the channel's current GPU buffer, or nil before the
// first createOrResize.
func (c *BaseChannel) GpuBuffer() Buffer { return c.gpuBuffer }

// ensureCpu makes the CPU buffer big enough for rows rows of rowSizeBytes
// each. Reusing the existing allocation when both the row count fits and
// the row size is unchanged avoids a reallocation on every sync; growing
// never shrinks below the 256-byte floor spec.md §4.7 sets for a small
// channel.
func (c *BaseChannel) ensureCpu(rows, rowSizeBytes int) {
	need := rows * rowSizeBytes
	if rowSizeBytes == c.rowSizeBytes && need <= len(c.cpu) {
		c.count = rows
		return
	}
	capBytes := need
	if capBytes < 256 {
		capBytes = 256
	}
	c.cpu = make([]byte, capBytes)
	c.rowSizeBytes = rowSizeBytes
	c.count = rows
}

// createOrResize allocates or replaces the GPU buffer if it does not yet
// exist or its size no longer matches the CPU buffer's logical extent
// (rounded up to the 4-byte minimum). It reports whether a new buffer was
// allocated; when one was, it has already marked every row dirty.
func (c *BaseChannel) createOrResize(device Device) (bool, error) {
	want := uint64(c.count * c.rowSizeBytes)
	if want < 4 {
		want = 4
	}
	if c.gpuBuffer != nil && c.gpuBuffer.SizeBytes() == want {
		return false, nil
	}
	if c.gpuBuffer != nil {
		c.gpuBuffer.Destroy()
	}
	buf, err := device.CreateBuffer(want, c.label)
	if err != nil {
		return false, err
	}
	c.gpuBuffer = buf
	c.markAllDirty()
	return true, nil
}

// markRowDirty appends row to the dirty range list, extending the last
// range in place when row immediately follows it.
func (c *BaseChannel) markRowDirty(row int) {
	if n := len(c.dirty); n > 0 && c.dirty[n-1].end == row-1 {
		c.dirty[n-1].end = row
		return
	}
	c.dirty = append(c.dirty, dirtyRange{start: row, end: row})
}

// markAllDirty resets the dirty range list to cover every row.
func (c *BaseChannel) markAllDirty() {
	if c.count == 0 {
		c.dirty = nil
		return
	}
	c.dirty = []dirtyRange{{start: 0, end: c.count - 1}}
}

// mergeDirtyRanges sorts and coalesces overlapping or adjacent ranges.
func mergeDirtyRanges(ranges []dirtyRange) []dirtyRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]dirtyRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	merged := make([]dirtyRange, 0, len(sorted))
	merged = append(merged, sorted[0])
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end+1 {
			if r.end > last.end {
				last.end = r.end
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// flush coalesces the dirty range list and issues one writeBuffer call per
// merged range, or a single full-buffer write if the merged coverage spans
// every row. It issues no write if nothing is dirty or no GPU buffer exists
// yet. The dirty list is cleared in every case.
func (c *BaseChannel) flush(queue Queue) {
	defer func() { c.dirty = nil }()
	if len(c.dirty) == 0 || c.gpuBuffer == nil {
		return
	}
	merged := mergeDirtyRanges(c.dirty)
	if len(merged) == 1 && merged[0].start == 0 && merged[0].end == c.count-1 {
		queue.WriteBuffer(c.gpuBuffer, 0, c.cpu[:c.count*c.rowSizeBytes])
		return
	}
	for _, r := range merged {
		startByte := r.start * c.rowSizeBytes
		endByte := (r.end + 1) * c.rowSizeBytes
		queue.WriteBuffer(c.gpuBuffer, uint64(startByte), c.cpu[startByte:endByte])
	}
}

func (c *BaseChannel) laneOffset(row, lane int) int {
	return row*c.rowSizeBytes + lane*4
}

func (c *BaseChannel) setF32(row, lane int, v float32) {
	off := c.laneOffset(row, lane)
	binary.LittleEndian.PutUint32(c.cpu[off:off+4], math.Float32bits(v))
}

func (c *BaseChannel) getF32(row, lane int) float32 {
	off := c.laneOffset(row, lane)
	return math.Float32frombits(binary.LittleEndian.Uint32(c.cpu[off : off+4]))
}

func (c *BaseChannel) setI32(row, lane int, v int32) {
	off := c.laneOffset(row, lane)
	binary.LittleEndian.PutUint32(c.cpu[off:off+4], uint32(v))
}

func (c *BaseChannel) getI32(row, lane int) int32 {
	off := c.laneOffset(row, lane)
	return int32(binary.LittleEndian.Uint32(c.cpu[off : off+4]))
}
