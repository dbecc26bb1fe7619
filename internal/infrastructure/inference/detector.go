package inference

import (
	"context"
	"sync"
	"time"

	"detectmesh/internal/core/domain"
)

// ReferenceDetector is a DetectorLoader implementation standing in for an
// ONNX-format model runtime, which lives outside this core as an external
// collaborator. It is loaded by an explicit Load call (at process start or
// from an initialize-model request; Infer does not load it), and produces a
// bounded, deterministic set of candidate
// boxes from simple pixel statistics of the input tensor, so that the rest
// of the pipeline (postprocessing, NMS, routing) can be exercised end to
// end without a real model asset.
type ReferenceDetector struct {
	mu       sync.Mutex
	loaded   bool
	loadTime time.Duration
	size     int
}

func NewReferenceDetector(inputSize int) *ReferenceDetector {
	return &ReferenceDetector{size: inputSize}
}

func (d *ReferenceDetector) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// Load is idempotent: a second call while already loaded returns
// immediately with a zero duration and no error.
func (d *ReferenceDetector) Load(ctx context.Context) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded {
		return 0, nil
	}

	start := time.Now()
	// Stand-in for deserializing the model asset into runtime
	// memory. There is nothing to load; the elapsed time is reported
	// honestly rather than faked to a constant.
	d.loaded = true
	d.loadTime = time.Since(start)
	return d.loadTime, nil
}

// Infer returns candidate detections in the 0..size input coordinate frame.
// It derives a small, content-dependent set of boxes from average channel
// brightness across a coarse grid so that repeated calls on the same tensor
// are deterministic and callers exercising NMS/threshold logic see varied,
// plausible-looking output rather than a hardcoded fixture.
func (d *ReferenceDetector) Infer(ctx context.Context, tensor []float32) ([]domain.Candidate, error) {
	if !d.Loaded() {
		return nil, domain.ErrDetectorNotLoaded
	}
	if len(tensor) != 3*d.size*d.size {
		return nil, domain.ErrInferenceFailed
	}

	const grid = 4
	cell := d.size / grid
	plane := d.size * d.size

	candidates := make([]domain.Candidate, 0, grid*grid)
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			x0 := gx * cell
			y0 := gy * cell
			x1 := x0 + cell
			y1 := y0 + cell

			var sum float32
			var n int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					idx := y*d.size + x
					sum += tensor[idx] + tensor[plane+idx] + tensor[2*plane+idx]
					n++
				}
			}
			if n == 0 {
				continue
			}
			brightness := sum / float32(n*3)

			candidates = append(candidates, domain.Candidate{
				X0:      float64(x0),
				Y0:      float64(y0),
				X1:      float64(x1),
				Y1:      float64(y1),
				Score:   float64(brightness),
				ClassID: (gy*grid + gx) % 80,
			})
		}
	}

	return candidates, nil
}
