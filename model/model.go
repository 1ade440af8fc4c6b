package model

import (
	"math/rand"

	"github.com/neurlang/sound2image/nn"
	"github.com/neurlang/sound2image/tensor"
)

// Input and output geometry shared by the networks.
const (
	MelFrames  = 1024 // spectrogram height fed to the encoder
	MelBins    = 128  // spectrogram width fed to the encoder
	LatentDim  = 4096
	FrameSize  = 256 // generated frames are FrameSize x FrameSize RGB
	FrameChans = 3
)

// Config selects the optional sub-modules of a network. The zero value
// disables everything; use GeneratorConfig / DiscriminatorConfig for the
// defaults the trainer uses.
type Config struct {
	SelfAttention bool
	SpectralNorm  bool
	Norm          nn.Norm
	Dropout       float64
}

// GeneratorConfig returns the generator defaults: self-attention on, batch
// normalization, no spectral normalization.
func GeneratorConfig() Config {
	return Config{SelfAttention: true, Norm: nn.NormBatch}
}

// DiscriminatorConfig returns the critic defaults: self-attention on,
// spectral normalization on every convolution, no batch normalization.
func DiscriminatorConfig() Config {
	return Config{SelfAttention: true, SpectralNorm: true, Norm: nn.NormNone}
}

func (c Config) bias() bool { return c.Norm == nn.NormNone }

func (c Config) attention(rng *rand.Rand, channels int) nn.Layer {
	if !c.SelfAttention {
		return nn.Identity{}
	}
	return nn.NewSelfAttention2d(rng, channels, c.SpectralNorm)
}

// Encoder reduces a stacked (log-mel, instantaneous-frequency) spectrogram of
// shape (B, 2, 1024, 128) to a latent vector of shape (B, 4096).
type Encoder struct {
	stack *nn.Sequential
}

// NewEncoder builds the downsampling audio-to-latent stack.
func NewEncoder(rng *rand.Rand, cfg Config) *Encoder {
	opts := nn.BlockOpts{
		Activation: nn.ActLeakyReLU,
		Norm:       cfg.Norm,
		SN:         cfg.SpectralNorm,
		Bias:       cfg.bias(),
		Downscale:  true,
	}
	seOpts := opts
	seOpts.SEBlock = true

	return &Encoder{stack: nn.NewSequential(
		nn.NewFirstBlockDown2d(rng, 2, 16, opts),
		nn.NewInvertedRes2d(rng, 16, 32, 32, opts),
		nn.NewInvertedRes2d(rng, 32, 64, 64, opts),
		nn.NewInvertedRes2d(rng, 64, 128, 128, opts),
		cfg.attention(rng, 128),
		nn.NewInvertedRes2d(rng, 128, 256, 256, seOpts),
		nn.NewInvertedRes2d(rng, 256, 512, 512, opts),
		normOrIdentity(rng, cfg, 512),
		nn.NewAct(nn.ActReLU),
		nn.NewAdaptiveAvgPool2d(2, 2),
		nn.NewConv2d(rng, 512, LatentDim, 2, 1, 0, true, cfg.SpectralNorm),
	)}
}

func normOrIdentity(rng *rand.Rand, cfg Config, c int) nn.Layer {
	if cfg.Norm == nn.NormBatch {
		return nn.NewBatchNorm2d(rng, c)
	}
	return nn.Identity{}
}

// Forward returns the latent vector for a (B, 2, 1024, 128) input.
func (e *Encoder) Forward(x *tensor.Tensor) *tensor.Tensor {
	y := e.stack.Forward(x)
	return y.Reshape(y.Shape[0], LatentDim)
}

// Backward propagates a (B, 4096) latent gradient back to the input.
func (e *Encoder) Backward(grad *tensor.Tensor) *tensor.Tensor {
	return e.stack.Backward(grad.Reshape(grad.Shape[0], LatentDim, 1, 1))
}

func (e *Encoder) Parameters() []*tensor.Tensor { return e.stack.Parameters() }
func (e *Encoder) SetTrain(train bool)          { e.stack.SetTrain(train) }
func (e *Encoder) State() [][]float64           { return e.stack.State() }

// Decoder expands a (B, 4096) latent vector to a (B, 3, 256, 256) image in
// [-1, 1].
type Decoder struct {
	stack *nn.Sequential
}

// NewDecoder builds the upsampling latent-to-image stack.
func NewDecoder(rng *rand.Rand, cfg Config) *Decoder {
	opts := nn.BlockOpts{
		Activation: nn.ActReLU,
		Norm:       cfg.Norm,
		SN:         cfg.SpectralNorm,
		Bias:       cfg.bias(),
	}
	dropOpts := opts
	dropOpts.Dropout = cfg.Dropout
	seOpts := opts
	seOpts.SEBlock = true

	return &Decoder{stack: nn.NewSequential(
		nn.NewBlockUpsample2d(rng, LatentDim, 512, dropOpts),
		nn.NewBlockUpsample2d(rng, 512, 256, dropOpts),
		nn.NewBlockUpsample2d(rng, 256, 128, opts),
		nn.NewBlockUpsample2d(rng, 128, 64, opts),
		nn.NewBlockUpsample2d(rng, 64, 64, seOpts),
		cfg.attention(rng, 64),
		nn.NewBlockUpsample2d(rng, 64, 32, opts),
		nn.NewBlockUpsample2d(rng, 32, 32, opts),
		nn.NewBlockUpsample2d(rng, 32, 16, opts),
		normOrIdentity(rng, cfg, 16),
		nn.NewAct(nn.ActReLU),
		nn.NewConv2d(rng, 16, FrameChans, 1, 1, 0, true, cfg.SpectralNorm),
		&nn.Tanh{},
	)}
}

// Forward maps a (B, 4096) latent vector to an image batch.
func (d *Decoder) Forward(latent *tensor.Tensor) *tensor.Tensor {
	return d.stack.Forward(latent.Reshape(latent.Shape[0], LatentDim, 1, 1))
}

// Backward propagates an image gradient back to a (B, 4096) latent gradient.
func (d *Decoder) Backward(grad *tensor.Tensor) *tensor.Tensor {
	g := d.stack.Backward(grad)
	return g.Reshape(g.Shape[0], LatentDim)
}

func (d *Decoder) Parameters() []*tensor.Tensor { return d.stack.Parameters() }
func (d *Decoder) SetTrain(train bool)          { d.stack.SetTrain(train) }
func (d *Decoder) State() [][]float64           { return d.stack.State() }

// Generator composes Encoder and Decoder. Callers holding a precomputed
// latent vector can skip the encoder via isFeature.
type Generator struct {
	Enc *Encoder
	Dec *Decoder

	encoded bool
}

// NewGenerator builds a generator from the given configuration.
func NewGenerator(rng *rand.Rand, cfg Config) *Generator {
	return &Generator{Enc: NewEncoder(rng, cfg), Dec: NewDecoder(rng, cfg)}
}

// Forward returns the generated image together with the latent vector that
// produced it. With isFeature set, input is taken to be the latent vector
// itself and the encoder is skipped.
func (g *Generator) Forward(input *tensor.Tensor, isFeature bool) (image, latent *tensor.Tensor) {
	if isFeature {
		latent = input
		g.encoded = false
	} else {
		latent = g.Enc.Forward(input)
		g.encoded = true
	}
	return g.Dec.Forward(latent), latent
}

// Backward propagates an image gradient through the decoder and, when the
// last Forward ran the encoder, onward through it. It returns the gradient
// with respect to the last Forward's input.
func (g *Generator) Backward(grad *tensor.Tensor) *tensor.Tensor {
	latentGrad := g.Dec.Backward(grad)
	if !g.encoded {
		return latentGrad
	}
	return g.Enc.Backward(latentGrad)
}

func (g *Generator) Parameters() []*tensor.Tensor {
	return append(g.Enc.Parameters(), g.Dec.Parameters()...)
}

func (g *Generator) SetTrain(train bool) {
	g.Enc.SetTrain(train)
	g.Dec.SetTrain(train)
}

func (g *Generator) State() [][]float64 {
	return append(g.Enc.State(), g.Dec.State()...)
}

// Discriminator scores (B, 3, 256, 256) images as a Wasserstein critic,
// producing an unbounded scalar per sample with shape (B, 1, 1, 1).
type Discriminator struct {
	stack *nn.Sequential
}

// NewDiscriminator builds the critic stack.
func NewDiscriminator(rng *rand.Rand, cfg Config) *Discriminator {
	opts := nn.BlockOpts{
		Activation: nn.ActLeakyReLU,
		Norm:       cfg.Norm,
		SN:         cfg.SpectralNorm,
		Bias:       cfg.bias(),
		Downscale:  true,
	}
	seOpts := opts
	seOpts.SEBlock = true

	return &Discriminator{stack: nn.NewSequential(
		nn.NewFirstBlockDown2d(rng, FrameChans, 8, opts),
		nn.NewInvertedRes2d(rng, 8, 16, 16, opts),
		nn.NewInvertedRes2d(rng, 16, 32, 32, opts),
		cfg.attention(rng, 32),
		nn.NewInvertedRes2d(rng, 32, 64, 64, seOpts),
		nn.NewInvertedRes2d(rng, 64, 128, 128, opts),
		nn.NewInvertedRes2d(rng, 128, 256, 256, opts),
		normOrIdentity(rng, cfg, 256),
		nn.NewAct(nn.ActLeakyReLU),
		nn.NewAdaptiveAvgPool2d(1, 1),
		nn.NewConv2d(rng, 256, 1, 1, 1, 0, true, cfg.SpectralNorm),
	)}
}

// Forward returns the critic scores, shape (B, 1, 1, 1).
func (d *Discriminator) Forward(x *tensor.Tensor) *tensor.Tensor {
	return d.stack.Forward(x)
}

// Backward propagates a score gradient back to the image input.
func (d *Discriminator) Backward(grad *tensor.Tensor) *tensor.Tensor {
	return d.stack.Backward(grad)
}

func (d *Discriminator) Parameters() []*tensor.Tensor { return d.stack.Parameters() }
func (d *Discriminator) SetTrain(train bool)          { d.stack.SetTrain(train) }
func (d *Discriminator) State() [][]float64           { return d.stack.State() }
