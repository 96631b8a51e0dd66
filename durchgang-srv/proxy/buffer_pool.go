package proxy

import (
	"sync"

	"github.com/codefionn/durchgang/durchgang-srv/config"
)

// bufferPool hands out fixed-size byte slices for the request read and
// the relay loops. Reusing buffers reduces GC pressure under load.
type bufferPool struct {
	pool sync.Pool
	size int
}

func newBufferPool(size int) *bufferPool {
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	return &bufferPool{
		pool: sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		},
		size: size,
	}
}

// get retrieves a buffer from the pool.
// The caller must return the buffer using put when done.
func (p *bufferPool) get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// put returns a buffer to the pool for reuse.
func (p *bufferPool) put(buf *[]byte) {
	if buf != nil {
		p.pool.Put(buf)
	}
}
