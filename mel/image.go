package mel

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/neurlang/sound2image/tensor"
)

// DumpImage renders the feature pair as a PNG for inspection: red is the
// log-mel magnitude, green the instantaneous frequency, blue their average,
// each min-max scaled over the whole clip. With reverse set the mel bands run
// bottom to top.
func DumpImage(name string, logMel, melIF *tensor.Tensor, reverse bool) error {
	frames, mels := logMel.Shape[0], logMel.Shape[1]

	f, err := os.Create(name)
	if err != nil {
		return err
	}

	img := image.NewRGBA(image.Rect(0, 0, frames, mels))

	var specMax, ifMax = -99999999., -99999999.
	var specMin, ifMin = 9999999., 9999999.
	for i, w := range logMel.Data {
		if w > specMax {
			specMax = w
		}
		if w < specMin {
			specMin = w
		}
		v := melIF.Data[i]
		if v > ifMax {
			ifMax = v
		}
		if v < ifMin {
			ifMin = v
		}
	}

	for x := 0; x < frames; x++ {
		for y := 0; y < mels; y++ {
			val0 := (logMel.Data[x*mels+y] - specMin) / (specMax - specMin)
			val1 := (melIF.Data[x*mels+y] - ifMin) / (ifMax - ifMin)
			var col color.RGBA
			col.R = uint8(int(255 * val0))
			col.G = uint8(int(255 * val1))
			col.B = uint8(int(255 * (val0 + val1) * 0.5))
			col.A = uint8(255)
			if reverse {
				img.SetRGBA(x, mels-y-1, col)
			} else {
				img.SetRGBA(x, y, col)
			}
		}
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
