package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurlang/sound2image/tensor"
)

func TestConv2dOutputShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cases := []struct {
		kernel, stride, pad int
		in, out             []int
	}{
		{3, 1, 1, []int{2, 2, 8, 8}, []int{2, 4, 8, 8}},
		{3, 2, 1, []int{2, 2, 8, 8}, []int{2, 4, 4, 4}},
		{1, 1, 0, []int{1, 2, 5, 5}, []int{1, 4, 5, 5}},
		{2, 1, 0, []int{1, 2, 2, 2}, []int{1, 4, 1, 1}},
	}
	for _, c := range cases {
		conv := NewConv2d(rng, 2, 4, c.kernel, c.stride, c.pad, true, false)
		y := conv.Forward(tensor.Randn(rng, 0, 1, c.in...))
		require.Equal(t, c.out, y.Shape)
	}
}

func TestConv2dRejectsWrongChannels(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conv := NewConv2d(rng, 3, 4, 3, 1, 1, true, false)
	require.Panics(t, func() {
		conv.Forward(tensor.New(1, 2, 4, 4))
	})
}

func TestConv2dGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	conv := NewConv2d(rng, 2, 3, 3, 2, 1, true, false)
	x := tensor.Randn(rng, 0, 1, 2, 2, 5, 5)
	checkGrads(t, conv, x)
}

func TestSpectralNormScaleInvariance(t *testing.T) {
	// W/sigma does not change when W is scaled, so neither does the output.
	rng := rand.New(rand.NewSource(3))
	conv := NewConv2d(rng, 2, 3, 3, 1, 1, false, true)
	conv.SetTrain(false)

	x := tensor.Randn(rng, 0, 1, 1, 2, 4, 4)
	y1 := conv.Forward(x).Clone()
	for i := range conv.W.Data {
		conv.W.Data[i] *= 3
	}
	y2 := conv.Forward(x)
	for i := range y1.Data {
		require.InDelta(t, y1.Data[i], y2.Data[i], 1e-9)
	}
}

func TestSpectralNormEvalDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	conv := NewConv2d(rng, 2, 3, 3, 1, 1, false, true)
	x := tensor.Randn(rng, 0, 1, 1, 2, 4, 4)

	// Training forwards move the power-iteration vector.
	conv.Forward(x)
	conv.Forward(x)

	conv.SetTrain(false)
	y1 := conv.Forward(x).Clone()
	y2 := conv.Forward(x)
	require.Equal(t, y1.Data, y2.Data)
}

func TestSpectralNormBoundsGain(t *testing.T) {
	// After normalization the layer's spectral norm is about one, so an
	// input cannot be amplified arbitrarily even with huge raw weights.
	rng := rand.New(rand.NewSource(5))
	conv := NewConv2d(rng, 1, 1, 1, 1, 0, false, true)
	conv.W.Data[0] = 1000

	for i := 0; i < 5; i++ {
		conv.Forward(tensor.NewFrom([]float64{1}, 1, 1, 1, 1))
	}
	y := conv.Forward(tensor.NewFrom([]float64{1}, 1, 1, 1, 1))
	require.InDelta(t, 1, y.Data[0], 1e-6)
}
