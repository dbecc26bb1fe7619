package optimize

import "sync"

// TensorPool recycles fixed-length float32 buffers across frames. Buffers
// are grouped by length, so one pool can serve detectors with different
// input geometries without ever handing back a slice of the wrong shape.
//
// Get returns a full-length slice whose contents are stale; callers are
// expected to overwrite every element. Put accepts only slices whose
// capacity matches a length the pool has seen, anything else is dropped.
type TensorPool struct {
	pools sync.Map // length -> *sync.Pool
}

func (p *TensorPool) Get(length int) []float32 {
	entry, ok := p.pools.Load(length)
	if !ok {
		entry, _ = p.pools.LoadOrStore(length, &sync.Pool{
			New: func() interface{} {
				return make([]float32, length)
			},
		})
	}
	return entry.(*sync.Pool).Get().([]float32)
}

func (p *TensorPool) Put(buf []float32) {
	entry, ok := p.pools.Load(cap(buf))
	if !ok {
		return
	}
	entry.(*sync.Pool).Put(buf[:cap(buf)])
}
