package nn

import (
	"math/rand"

	"github.com/neurlang/sound2image/tensor"
)

// BlockOpts carries the construction-time switches shared by the residual
// blocks. Optional stages (normalization, squeeze-excite, dropout) resolve to
// Identity when disabled, so forward passes never branch.
type BlockOpts struct {
	Activation Activation
	Norm       Norm
	Dropout    float64
	SEBlock    bool
	SN         bool
	Bias       bool
	Downscale  bool
}

func (o BlockOpts) se(rng *rand.Rand, c int) Layer {
	if !o.SEBlock {
		return Identity{}
	}
	return NewSEBlock(rng, c)
}

func (o BlockOpts) dropout(rng *rand.Rand) Layer {
	if o.Dropout <= 0 {
		return Identity{}
	}
	return NewDropout(rng, o.Dropout)
}

// residual sums a main path and a shortcut path.
type residual struct {
	main, shortcut Layer
}

func (r *residual) Forward(x *tensor.Tensor) *tensor.Tensor {
	y := r.main.Forward(x)
	s := r.shortcut.Forward(x)
	if s == x {
		// Identity shortcut: do not clobber the input tensor
		y.Add(s)
		return y
	}
	s.Add(y)
	return s
}

func (r *residual) Backward(grad *tensor.Tensor) *tensor.Tensor {
	g := r.main.Backward(grad)
	gs := r.shortcut.Backward(grad)
	if gs == grad {
		g.Add(grad)
		return g
	}
	gs.Add(g)
	return gs
}

func (r *residual) Parameters() []*tensor.Tensor {
	return append(r.main.Parameters(), r.shortcut.Parameters()...)
}

func (r *residual) SetTrain(train bool) {
	r.main.SetTrain(train)
	r.shortcut.SetTrain(train)
}

func (r *residual) State() [][]float64 {
	return append(StateOf(r.main), StateOf(r.shortcut)...)
}

// downShortcut builds the skip path of a downsampling block: average pool when
// downscaling, then a 1x1 projection when the channel count changes.
func downShortcut(rng *rand.Rand, inC, outC int, o BlockOpts) Layer {
	var layers []Layer
	if o.Downscale {
		layers = append(layers, &AvgPool2d{})
	}
	if inC != outC {
		layers = append(layers, NewConv2d(rng, inC, outC, 1, 1, 0, o.Bias, o.SN))
	}
	if len(layers) == 0 {
		return Identity{}
	}
	return NewSequential(layers...)
}

// FirstBlockDown2d is the plain entry block of a downsampling stack: two 3x3
// convolutions (the second strided when downscaling) with a pooled projection
// shortcut.
type FirstBlockDown2d struct {
	residual
}

// NewFirstBlockDown2d builds the stack entry block.
func NewFirstBlockDown2d(rng *rand.Rand, inC, outC int, o BlockOpts) *FirstBlockDown2d {
	stride := 1
	if o.Downscale {
		stride = 2
	}
	main := NewSequential(
		NewConv2d(rng, inC, outC, 3, 1, 1, o.Bias, o.SN),
		newNorm(rng, o.Norm, outC),
		NewAct(o.Activation),
		NewConv2d(rng, outC, outC, 3, stride, 1, o.Bias, o.SN),
		o.se(rng, outC),
	)
	return &FirstBlockDown2d{residual{main: main, shortcut: downShortcut(rng, inC, outC, o)}}
}

// InvertedRes2d is an inverted-residual downsampling block: a 1x1 expansion
// to planes channels, a 3x3 spatial convolution (strided when downscaling),
// and a 1x1 projection back down, with a pooled projection shortcut.
type InvertedRes2d struct {
	residual
}

// NewInvertedRes2d builds an inverted-residual block with the given expansion
// width.
func NewInvertedRes2d(rng *rand.Rand, inC, planes, outC int, o BlockOpts) *InvertedRes2d {
	stride := 1
	if o.Downscale {
		stride = 2
	}
	main := NewSequential(
		NewConv2d(rng, inC, planes, 1, 1, 0, o.Bias, o.SN),
		newNorm(rng, o.Norm, planes),
		NewAct(o.Activation),
		NewConv2d(rng, planes, planes, 3, stride, 1, o.Bias, o.SN),
		newNorm(rng, o.Norm, planes),
		NewAct(o.Activation),
		o.dropout(rng),
		NewConv2d(rng, planes, outC, 1, 1, 0, o.Bias, o.SN),
		o.se(rng, outC),
	)
	return &InvertedRes2d{residual{main: main, shortcut: downShortcut(rng, inC, outC, o)}}
}

// BlockUpsample2d doubles spatial resolution: nearest upsampling followed by
// two 3x3 convolutions, with an upsampled 1x1 projection shortcut.
type BlockUpsample2d struct {
	residual
}

// NewBlockUpsample2d builds an upsampling residual block.
func NewBlockUpsample2d(rng *rand.Rand, inC, outC int, o BlockOpts) *BlockUpsample2d {
	main := NewSequential(
		&Upsample2d{},
		NewConv2d(rng, inC, outC, 3, 1, 1, o.Bias, o.SN),
		newNorm(rng, o.Norm, outC),
		NewAct(o.Activation),
		NewConv2d(rng, outC, outC, 3, 1, 1, o.Bias, o.SN),
		o.dropout(rng),
		o.se(rng, outC),
	)
	shortcut := NewSequential(
		&Upsample2d{},
		NewConv2d(rng, inC, outC, 1, 1, 0, o.Bias, o.SN),
	)
	return &BlockUpsample2d{residual{main: main, shortcut: shortcut}}
}
