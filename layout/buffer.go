package layout

import "sync"

// Scratch buffers for formatting; the formatted line is always copied out
// before the buffer goes back to the pool.
var bufPool = sync.Pool{New: func() any { b := make([]byte, 0, 1024); return &b }}

func getBuf() *[]byte {
	bp := bufPool.Get().(*[]byte)
	*bp = (*bp)[:0]
	return bp
}

func putBuf(bp *[]byte) {
	if cap(*bp) <= 64*1024 {
		bufPool.Put(bp)
	}
}

func detach(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
