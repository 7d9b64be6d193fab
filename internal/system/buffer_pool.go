package system

import (
	"sync"
)

// BufferPool reuses frame-sized byte slices to keep the per-frame
// allocation rate (and GC pressure) flat during long exports.
type BufferPool struct {
	pools map[int]*sync.Pool
	mu    sync.RWMutex
}

var globalPool = NewBufferPool()

func NewBufferPool() *BufferPool {
	return &BufferPool{pools: make(map[int]*sync.Pool)}
}

// GetBuffer returns a slice of length size from the shared pool.
func GetBuffer(size int) []byte {
	return globalPool.Get(size)
}

// PutBuffer hands a slice obtained from GetBuffer back to the shared pool.
func PutBuffer(b []byte) {
	globalPool.Put(b)
}

// Get returns a slice of length size. Its contents are unspecified.
func (p *BufferPool) Get(size int) []byte {
	p.mu.RLock()
	pool, exists := p.pools[size]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[size]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					b := make([]byte, size)
					return &b
				},
			}
			p.pools[size] = pool
		}
		p.mu.Unlock()
	}

	return *(pool.Get().(*[]byte))
}

func (p *BufferPool) Put(b []byte) {
	if len(b) == 0 {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[len(b)]
	p.mu.RUnlock()

	if exists {
		pool.Put(&b)
	}
}
