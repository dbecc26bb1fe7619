package inference

import (
	"encoding/base64"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"detectmesh/internal/core/domain"
	"detectmesh/pkg/optimize"

	"golang.org/x/image/draw"
)

// tensors recycles preprocessing buffers across frames. Callers that are
// done with a tensor hand it back through ReleaseTensor.
var tensors optimize.TensorPool

// DecodeImageData strips an optional data-URI prefix and decodes the
// remaining base64 payload into an image. The base64 stream feeds the
// codec directly, without materializing the compressed bytes first.
func DecodeImageData(imageData string) (image.Image, error) {
	raw := imageData
	if idx := strings.Index(raw, ","); idx != -1 && strings.HasPrefix(raw, "data:") {
		raw = raw[idx+1:]
	}

	img, _, err := image.Decode(base64.NewDecoder(base64.StdEncoding, strings.NewReader(raw)))
	if err != nil {
		return nil, domain.ErrFrameDecodeFailed
	}
	return img, nil
}

// ResizeToSquare resizes img to size×size using bilinear resampling.
// An *image.RGBA that is already that size is returned as is; any other
// image is redrawn, even at the target size.
func ResizeToSquare(img image.Image, size int) (*image.RGBA, error) {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		if rgba, ok := img.(*image.RGBA); ok {
			return rgba, nil
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	if dst == nil {
		return nil, domain.ErrFrameResizeFailed
	}
	return dst, nil
}

// ToTensor packs an RGBA image already resized to size×size into a
// [1,3,size,size] channel-first tensor with values in [0,1]. The backing
// slice is drawn from a pool sized for the configured input geometry to
// avoid a fresh allocation per frame; return it with ReleaseTensor once
// the detector has consumed it.
func ToTensor(img *image.RGBA, size int) []float32 {
	tensor := tensors.Get(3 * size * size)

	plane := size * size
	for y := 0; y < size; y++ {
		rowOff := img.PixOffset(0, y)
		row := img.Pix[rowOff : rowOff+size*4]
		for x := 0; x < size; x++ {
			i := x * 4
			r := float32(row[i]) / 255
			g := float32(row[i+1]) / 255
			bch := float32(row[i+2]) / 255

			idx := y*size + x
			tensor[idx] = r
			tensor[plane+idx] = g
			tensor[2*plane+idx] = bch
		}
	}
	return tensor
}

// ReleaseTensor returns a tensor obtained from ToTensor for reuse.
func ReleaseTensor(tensor []float32) {
	tensors.Put(tensor)
}
