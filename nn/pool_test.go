package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurlang/sound2image/tensor"
)

func TestUpsampleNearest(t *testing.T) {
	x := tensor.NewFrom([]float64{1, 2, 3, 4}, 1, 1, 2, 2)
	y := (&Upsample2d{}).Forward(x)
	require.Equal(t, []int{1, 1, 4, 4}, y.Shape)
	require.Equal(t, 1.0, y.At(0, 0, 0, 0))
	require.Equal(t, 1.0, y.At(0, 0, 1, 1))
	require.Equal(t, 4.0, y.At(0, 0, 3, 3))
}

func TestUpsampleGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := tensor.Randn(rng, 0, 1, 2, 2, 3, 3)
	checkGrads(t, &Upsample2d{}, x)
}

func TestAvgPoolHalvesAndAverages(t *testing.T) {
	x := tensor.NewFrom([]float64{1, 2, 3, 4}, 1, 1, 2, 2)
	y := (&AvgPool2d{}).Forward(x)
	require.Equal(t, []int{1, 1, 1, 1}, y.Shape)
	require.Equal(t, 2.5, y.Data[0])
}

func TestAdaptiveAvgPoolShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x := tensor.Randn(rng, 0, 1, 2, 3, 16, 2)

	y := NewAdaptiveAvgPool2d(2, 2).Forward(x)
	require.Equal(t, []int{2, 3, 2, 2}, y.Shape)

	y = NewAdaptiveAvgPool2d(1, 1).Forward(x)
	require.Equal(t, []int{2, 3, 1, 1}, y.Shape)

	// (1, 1) output is the global average
	var want float64
	for yy := 0; yy < 16; yy++ {
		for xx := 0; xx < 2; xx++ {
			want += x.At(0, 0, yy, xx)
		}
	}
	require.InDelta(t, want/32, y.At(0, 0, 0, 0), 1e-12)
}

func TestAdaptiveAvgPoolGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	x := tensor.Randn(rng, 0, 1, 1, 2, 5, 3)
	checkGrads(t, NewAdaptiveAvgPool2d(2, 2), x)
}

func TestDropoutEvalIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	d := NewDropout(rng, 0.5)
	d.SetTrain(false)
	x := tensor.Randn(rng, 0, 1, 2, 8)
	y := d.Forward(x)
	require.Equal(t, x.Data, y.Data)
}

func TestDropoutTrainScalesSurvivors(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	d := NewDropout(rng, 0.5)
	x := tensor.NewFrom(make([]float64, 1000), 1, 1000)
	for i := range x.Data {
		x.Data[i] = 1
	}
	y := d.Forward(x)
	zeros := 0
	for _, v := range y.Data {
		if v == 0 {
			zeros++
		} else {
			require.InDelta(t, 2, v, 1e-12)
		}
	}
	require.Greater(t, zeros, 350)
	require.Less(t, zeros, 650)
}
