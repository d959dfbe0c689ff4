package bsp

import (
	"sync"
)

// ============================================================================
// Buffer Pool for Frame Payloads
// ============================================================================
//
// Frame payloads are read into pooled byte slices so a busy connection does
// not allocate one buffer per frame. Uploads and downloads move their data
// in chunk frames, and at the default chunk size a single transfer can
// produce thousands of frames; pooling keeps those reads allocation-free.
//
// Thread Safety:
// - All operations are thread-safe via sync.Pool
// - Safe for concurrent use across multiple connections

const (
	// Buffer size classes matched to BSP message patterns

	// smallBufferSize covers control traffic: call and reply headers,
	// download/delete requests, health and delete replies, fault replies.
	smallBufferSize = 4 << 10 // 4KB

	// mediumBufferSize covers chunk frames at the default chunk size and
	// metadata units with long filenames.
	mediumBufferSize = 64 << 10 // 64KB

	// largeBufferSize covers frames up to the protocol cap. MaxFrameSize
	// never exceeds this, so every legal frame fits a pooled buffer.
	largeBufferSize = 1 << 20 // 1MB
)

// bufferPool manages a set of byte slice pools organized by size class.
// It selects the appropriate pool based on requested size and falls back to
// direct allocation for oversized requests.
type bufferPool struct {
	small  sync.Pool // 4KB buffers
	medium sync.Pool // 64KB buffers
	large  sync.Pool // 1MB buffers
}

// globalBufferPool is the package-level buffer pool shared by every frame
// reader in the process.
var globalBufferPool = &bufferPool{
	small: sync.Pool{
		New: func() any {
			buf := make([]byte, smallBufferSize)
			return &buf
		},
	},
	medium: sync.Pool{
		New: func() any {
			buf := make([]byte, mediumBufferSize)
			return &buf
		},
	},
	large: sync.Pool{
		New: func() any {
			buf := make([]byte, largeBufferSize)
			return &buf
		},
	},
}

// Get returns a byte slice of exactly the requested length, backed by a
// pooled buffer whose capacity may be larger. The caller must hand the
// slice back via Put when done; buffers that never come back are a leak
// of pool efficiency, not memory.
//
// Sizes above largeBufferSize are allocated directly and never pooled, so
// an occasional oversized request cannot pin a huge buffer in memory.
func (p *bufferPool) Get(size uint32) []byte {
	var bufPtr *[]byte

	switch {
	case size <= smallBufferSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= mediumBufferSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= largeBufferSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		buf := make([]byte, size)
		return buf
	}

	buf := *bufPtr
	return buf[:size]
}

// Put returns a buffer to its pool. Buffers whose capacity matches no size
// class (oversized direct allocations) are left for the garbage collector.
func (p *bufferPool) Put(buf []byte) {
	if buf == nil {
		return
	}

	// The size class is identified by capacity: Get hands out pooled
	// buffers re-sliced to the requested length, so length is meaningless
	// here but capacity is exact.
	switch cap(buf) {
	case smallBufferSize:
		fullBuf := buf[:cap(buf)]
		p.small.Put(&fullBuf)
	case mediumBufferSize:
		fullBuf := buf[:cap(buf)]
		p.medium.Put(&fullBuf)
	case largeBufferSize:
		fullBuf := buf[:cap(buf)]
		p.large.Put(&fullBuf)
	default:
		return
	}
}

// GetBuffer acquires a buffer from the global pool.
//
// Usage:
//
//	buf := GetBuffer(size)
//	defer PutBuffer(buf)
//	// ... use buf ...
func GetBuffer(size uint32) []byte {
	return globalBufferPool.Get(size)
}

// PutBuffer returns a buffer to the global pool.
func PutBuffer(buf []byte) {
	globalBufferPool.Put(buf)
}
