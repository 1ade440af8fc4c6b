package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurlang/sound2image/tensor"
)

func TestSEBlockShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	se := NewSEBlock(rng, 32)
	require.Equal(t, 2, se.R)
	x := tensor.Randn(rng, 0, 1, 2, 32, 4, 4)
	require.Equal(t, x.Shape, se.Forward(x).Shape)
}

func TestSEBlockHiddenFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	se := NewSEBlock(rng, 8)
	require.Equal(t, 1, se.R)
}

func TestSEBlockGating(t *testing.T) {
	// With zero MLP weights every gate is sigmoid(0) = 0.5.
	rng := rand.New(rand.NewSource(3))
	se := NewSEBlock(rng, 4)
	for _, p := range se.Parameters() {
		for i := range p.Data {
			p.Data[i] = 0
		}
	}
	x := tensor.Randn(rng, 0, 1, 1, 4, 2, 2)
	y := se.Forward(x)
	for i := range x.Data {
		require.InDelta(t, 0.5*x.Data[i], y.Data[i], 1e-12)
	}
}

func TestSEBlockGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	se := NewSEBlock(rng, 4)
	x := tensor.Randn(rng, 0, 1, 2, 4, 3, 3)
	checkGrads(t, se, x)
}
