package optimize

import "testing"

const benchTensorLen = 3 * 640 * 640

func BenchmarkTensorPool(b *testing.B) {
	var pool TensorPool
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf := pool.Get(benchTensorLen)
		buf[0] = 1
		pool.Put(buf)
	}
}

func BenchmarkTensorAlloc(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf := make([]float32, benchTensorLen)
		buf[0] = 1
		_ = buf
	}
}
