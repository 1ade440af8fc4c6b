package train

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurlang/sound2image/tensor"
)

func TestSaveGridDimensions(t *testing.T) {
	fakes := tensor.New(3, 3, 8, 8)
	reals := tensor.New(3, 3, 8, 8)
	name := filepath.Join(t.TempDir(), "grid.png")
	require.NoError(t, SaveGrid(name, fakes, reals))

	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	require.Equal(t, 2*8+3*gridPadding, img.Bounds().Dx())
	require.Equal(t, 3*8+4*gridPadding, img.Bounds().Dy())
}

func TestSaveFramePixelMapping(t *testing.T) {
	frames := tensor.New(1, 3, 2, 2)
	// channel 0 fully on, others fully off
	for i := 0; i < 4; i++ {
		frames.Data[i] = 1
		frames.Data[4+i] = -1
		frames.Data[8+i] = -1
	}
	name := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, SaveFrame(name, frames, 0))

	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	r, g, b, _ := img.At(0, 0).RGBA()
	require.Equal(t, uint32(0xffff), r)
	require.Equal(t, uint32(0), g)
	require.Equal(t, uint32(0), b)
}

func TestToByteClips(t *testing.T) {
	require.Equal(t, uint8(0), toByte(-2))
	require.Equal(t, uint8(255), toByte(2))
	require.Equal(t, uint8(127), toByte(0))
}
