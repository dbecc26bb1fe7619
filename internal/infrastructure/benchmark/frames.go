package benchmark

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync/atomic"
	"time"

	"detectmesh/internal/core/domain"
)

// FrameSource produces the synthetic capture stream the harness feeds
// through the pipeline. Frames carry a fixed bright square over a dark
// background so the detector has something to find; the encode happens once
// and only identity fields change per frame.
type FrameSource struct {
	room      domain.RoomID
	width     int
	height    int
	imageData string
	seq       atomic.Uint64
}

// NewFrameSource pre-renders the benchmark frame at the given square size.
func NewFrameSource(room domain.RoomID, size int) (*FrameSource, error) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: 16, G: 16, B: 24, A: 255})
		}
	}
	// One bright quadrant-sized block, bright enough to clear any
	// brightness-derived score threshold.
	for y := size / 8; y < size/2; y++ {
		for x := size / 8; x < size/2; x++ {
			img.Set(x, y, color.RGBA{R: 250, G: 250, B: 245, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode benchmark frame: %w", err)
	}

	return &FrameSource{
		room:      room,
		width:     size,
		height:    size,
		imageData: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Next returns the next Frame Request, stamped with the current wall clock.
func (s *FrameSource) Next() domain.FrameRequest {
	n := s.seq.Add(1)
	return domain.FrameRequest{
		Room:      s.room,
		FrameID:   fmt.Sprintf("bench-%d", n),
		CaptureTS: time.Now().UnixMilli(),
		Width:     s.width,
		Height:    s.height,
		ImageData: s.imageData,
	}
}

// PayloadBytes is the wire size of one frame's image payload.
func (s *FrameSource) PayloadBytes() int {
	return len(s.imageData)
}
