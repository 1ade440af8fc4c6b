package nn

import (
	"math"
	"math/rand"

	"github.com/neurlang/sound2image/tensor"
)

// BatchNorm2d normalizes each channel over the batch and spatial axes during
// training and over accumulated running statistics in eval mode.
type BatchNorm2d struct {
	C        int
	Gamma    *tensor.Tensor
	Beta     *tensor.Tensor
	RunMean  []float64
	RunVar   []float64
	Momentum float64
	Eps      float64

	train bool

	x         *tensor.Tensor
	xhat      []float64
	invstd    []float64
	usedBatch bool
}

// NewBatchNorm2d constructs batch normalization over c channels with
// gamma ~ N(1, 0.02) and zero beta.
func NewBatchNorm2d(rng *rand.Rand, c int) *BatchNorm2d {
	bn := &BatchNorm2d{
		C:        c,
		Gamma:    tensor.Randn(rng, 1, 0.02, c),
		Beta:     tensor.NewParam(c),
		RunMean:  make([]float64, c),
		RunVar:   make([]float64, c),
		Momentum: 0.1,
		Eps:      1e-5,
		train:    true,
	}
	for i := range bn.RunVar {
		bn.RunVar[i] = 1
	}
	return bn
}

// newNorm builds the normalization stage for a block, or Identity when the
// scheme is NormNone.
func newNorm(rng *rand.Rand, kind Norm, c int) Layer {
	switch kind {
	case NormBatch:
		return NewBatchNorm2d(rng, c)
	default:
		return Identity{}
	}
}

func (bn *BatchNorm2d) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{bn.Gamma, bn.Beta}
}

func (bn *BatchNorm2d) SetTrain(train bool) { bn.train = train }

func (bn *BatchNorm2d) State() [][]float64 {
	return [][]float64{bn.RunMean, bn.RunVar}
}

func (bn *BatchNorm2d) Forward(x *tensor.Tensor) *tensor.Tensor {
	b, c, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	n := b * h * w
	bn.x = x
	bn.usedBatch = bn.train
	if bn.xhat == nil || len(bn.xhat) != len(x.Data) {
		bn.xhat = make([]float64, len(x.Data))
	}
	if bn.invstd == nil {
		bn.invstd = make([]float64, c)
	}

	y := tensor.New(x.Shape...)
	plane := h * w
	tensor.ForEach(c, func(ci int) {
		var mean, variance float64
		if bn.train {
			var sum float64
			for bi := 0; bi < b; bi++ {
				off := (bi*c + ci) * plane
				for i := 0; i < plane; i++ {
					sum += x.Data[off+i]
				}
			}
			mean = sum / float64(n)
			var sq float64
			for bi := 0; bi < b; bi++ {
				off := (bi*c + ci) * plane
				for i := 0; i < plane; i++ {
					d := x.Data[off+i] - mean
					sq += d * d
				}
			}
			variance = sq / float64(n)
			// running stats use the unbiased estimate
			unbiased := variance
			if n > 1 {
				unbiased = sq / float64(n-1)
			}
			bn.RunMean[ci] = (1-bn.Momentum)*bn.RunMean[ci] + bn.Momentum*mean
			bn.RunVar[ci] = (1-bn.Momentum)*bn.RunVar[ci] + bn.Momentum*unbiased
		} else {
			mean = bn.RunMean[ci]
			variance = bn.RunVar[ci]
		}
		inv := 1 / math.Sqrt(variance+bn.Eps)
		bn.invstd[ci] = inv
		g, be := bn.Gamma.Data[ci], bn.Beta.Data[ci]
		for bi := 0; bi < b; bi++ {
			off := (bi*c + ci) * plane
			for i := 0; i < plane; i++ {
				xh := (x.Data[off+i] - mean) * inv
				bn.xhat[off+i] = xh
				y.Data[off+i] = g*xh + be
			}
		}
	})
	return y
}

func (bn *BatchNorm2d) Backward(grad *tensor.Tensor) *tensor.Tensor {
	b, c, h, w := bn.x.Shape[0], bn.x.Shape[1], bn.x.Shape[2], bn.x.Shape[3]
	n := float64(b * h * w)
	plane := h * w
	g := tensor.New(bn.x.Shape...)
	tensor.ForEach(c, func(ci int) {
		var sumDy, sumDyXhat float64
		for bi := 0; bi < b; bi++ {
			off := (bi*c + ci) * plane
			for i := 0; i < plane; i++ {
				dy := grad.Data[off+i]
				sumDy += dy
				sumDyXhat += dy * bn.xhat[off+i]
			}
		}
		bn.Gamma.Grad[ci] += sumDyXhat
		bn.Beta.Grad[ci] += sumDy

		gamma := bn.Gamma.Data[ci]
		inv := bn.invstd[ci]
		if bn.usedBatch {
			for bi := 0; bi < b; bi++ {
				off := (bi*c + ci) * plane
				for i := 0; i < plane; i++ {
					dy := grad.Data[off+i]
					g.Data[off+i] = gamma * inv / n * (n*dy - sumDy - bn.xhat[off+i]*sumDyXhat)
				}
			}
		} else {
			// running statistics are constants in eval mode
			for bi := 0; bi < b; bi++ {
				off := (bi*c + ci) * plane
				for i := 0; i < plane; i++ {
					g.Data[off+i] = gamma * inv * grad.Data[off+i]
				}
			}
		}
	})
	return g
}
