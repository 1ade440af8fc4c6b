package train

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/neurlang/sound2image/tensor"
)

const gridPadding = 10

// SaveGrid writes an image grid pairing each generated frame with the real
// frame it should resemble, one pair per row. Pixel values in [-1, 1] map to
// the full byte range; anything outside clips.
func SaveGrid(name string, fakes, reals *tensor.Tensor) error {
	b := fakes.Shape[0]
	h, w := fakes.Shape[2], fakes.Shape[3]

	width := 2*w + 3*gridPadding
	height := b*h + (b+1)*gridPadding
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for i := 0; i < b; i++ {
		top := gridPadding + i*(h+gridPadding)
		drawFrame(img, fakes, i, gridPadding, top)
		drawFrame(img, reals, i, 2*gridPadding+w, top)
	}

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveFrame writes one frame of a (B, 3, H, W) batch as a plain PNG.
func SaveFrame(name string, frames *tensor.Tensor, idx int) error {
	h, w := frames.Shape[2], frames.Shape[3]
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	drawFrame(img, frames, idx, 0, 0)

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func drawFrame(img *image.RGBA, frames *tensor.Tensor, idx, left, top int) {
	h, w := frames.Shape[2], frames.Shape[3]
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(left+x, top+y, color.RGBA{
				R: toByte(frames.At(idx, 0, y, x)),
				G: toByte(frames.At(idx, 1, y, x)),
				B: toByte(frames.At(idx, 2, y, x)),
				A: 255,
			})
		}
	}
}

// toByte maps [-1, 1] onto [0, 255] with clipping.
func toByte(v float64) uint8 {
	v = (v + 1) * 127.5
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint8(v)
}
