package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurlang/sound2image/nn"
	"github.com/neurlang/sound2image/tensor"
)

func TestConfigs(t *testing.T) {
	g := GeneratorConfig()
	require.True(t, g.SelfAttention)
	require.Equal(t, nn.NormBatch, g.Norm)
	require.False(t, g.SpectralNorm)

	d := DiscriminatorConfig()
	require.True(t, d.SelfAttention)
	require.True(t, d.SpectralNorm)
	require.Equal(t, nn.NormNone, d.Norm)
	require.True(t, d.bias())
}

func TestEncoderShape(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size forward pass")
	}
	rng := rand.New(rand.NewSource(1))
	enc := NewEncoder(rng, GeneratorConfig())
	x := tensor.Randn(rng, 0, 1, 1, 2, MelFrames, MelBins)
	latent := enc.Forward(x)
	require.Equal(t, []int{1, LatentDim}, latent.Shape)
}

func TestGeneratorShapeAndRange(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size forward pass")
	}
	rng := rand.New(rand.NewSource(2))
	gen := NewGenerator(rng, GeneratorConfig())
	gen.SetTrain(false)

	x := tensor.Randn(rng, 0, 1, 1, 2, MelFrames, MelBins)
	img, latent := gen.Forward(x, false)
	require.Equal(t, []int{1, FrameChans, FrameSize, FrameSize}, img.Shape)
	require.Equal(t, []int{1, LatentDim}, latent.Shape)
	for _, v := range img.Data {
		require.GreaterOrEqual(t, v, -1.0)
		require.LessOrEqual(t, v, 1.0)
	}
}

func TestGeneratorLatentBypass(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size forward pass")
	}
	rng := rand.New(rand.NewSource(3))
	gen := NewGenerator(rng, GeneratorConfig())
	gen.SetTrain(false)

	x := tensor.Randn(rng, 0, 1, 1, 2, MelFrames, MelBins)
	img1, latent := gen.Forward(x, false)
	img2, _ := gen.Forward(latent, true)
	require.Equal(t, img1.Data, img2.Data)
}

func TestDiscriminatorShape(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size forward pass")
	}
	rng := rand.New(rand.NewSource(4))
	d := NewDiscriminator(rng, DiscriminatorConfig())
	x := tensor.Randn(rng, 0, 1, 2, FrameChans, FrameSize, FrameSize)
	score := d.Forward(x)
	require.Equal(t, []int{2, 1, 1, 1}, score.Shape)
}

func TestNetworksExposeState(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	gen := NewGenerator(rng, GeneratorConfig())
	require.NotEmpty(t, gen.State())

	d := NewDiscriminator(rng, DiscriminatorConfig())
	require.NotEmpty(t, d.State())
}
