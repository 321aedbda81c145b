package detour

import "sync"

// TileBuffer is a move-only handle to a serialized tile. The store takes
// the bytes exactly once; afterwards the handle is empty and every further
// take fails with ErrBufferConsumed.
type TileBuffer struct {
	mu   sync.Mutex
	data []byte
	used bool
}

func NewTileBuffer(data []byte) *TileBuffer {
	return &TileBuffer{data: data}
}

// Len is the payload size, zero once consumed.
func (b *TileBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Bytes exposes the payload without transferring ownership.
func (b *TileBuffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

func (b *TileBuffer) take() ([]byte, error) {
	if b == nil {
		return nil, ErrBufferConsumed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used {
		return nil, ErrBufferConsumed
	}
	data := b.data
	b.data = nil
	b.used = true
	return data, nil
}

// Release drops an unconsumed payload, for results that are discarded.
func (b *TileBuffer) Release() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.data = nil
	b.used = true
	b.mu.Unlock()
}
