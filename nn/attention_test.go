package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurlang/sound2image/tensor"
)

func TestSelfAttentionIdentityAtInit(t *testing.T) {
	// gamma starts at zero, so a fresh layer is a no-op.
	rng := rand.New(rand.NewSource(1))
	sa := NewSelfAttention2d(rng, 8, false)
	x := tensor.Randn(rng, 0, 1, 2, 8, 4, 4)
	y := sa.Forward(x)
	require.Equal(t, x.Shape, y.Shape)
	for i := range x.Data {
		require.InDelta(t, x.Data[i], y.Data[i], 1e-12)
	}
}

func TestSelfAttentionShape(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	sa := NewSelfAttention2d(rng, 16, false)
	sa.Gamma.Data[0] = 0.5
	x := tensor.Randn(rng, 0, 1, 1, 16, 6, 3)
	require.Equal(t, []int{1, 16, 6, 3}, sa.Forward(x).Shape)
}

func TestSelfAttentionGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	sa := NewSelfAttention2d(rng, 8, false)
	sa.Gamma.Data[0] = 0.3
	x := tensor.Randn(rng, 0, 1, 2, 8, 3, 3)
	checkGrads(t, sa, x)
}
