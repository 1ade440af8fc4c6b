package nn

import (
	"math"

	"github.com/neurlang/sound2image/tensor"
)

const leakySlope = 0.01

// Act applies the configured element-wise non-linearity.
type Act struct {
	base
	Kind Activation
	x    *tensor.Tensor
}

// NewAct builds an activation layer of the given kind.
func NewAct(kind Activation) *Act { return &Act{Kind: kind} }

func (a *Act) Forward(x *tensor.Tensor) *tensor.Tensor {
	a.x = x
	y := tensor.New(x.Shape...)
	switch a.Kind {
	case ActReLU:
		for i, v := range x.Data {
			if v > 0 {
				y.Data[i] = v
			}
		}
	case ActLeakyReLU:
		for i, v := range x.Data {
			if v > 0 {
				y.Data[i] = v
			} else {
				y.Data[i] = v * leakySlope
			}
		}
	}
	return y
}

func (a *Act) Backward(grad *tensor.Tensor) *tensor.Tensor {
	g := tensor.New(grad.Shape...)
	switch a.Kind {
	case ActReLU:
		for i, v := range a.x.Data {
			if v > 0 {
				g.Data[i] = grad.Data[i]
			}
		}
	case ActLeakyReLU:
		for i, v := range a.x.Data {
			if v > 0 {
				g.Data[i] = grad.Data[i]
			} else {
				g.Data[i] = grad.Data[i] * leakySlope
			}
		}
	}
	return g
}

// Tanh bounds its input to (-1, 1).
type Tanh struct {
	base
	y *tensor.Tensor
}

func (t *Tanh) Forward(x *tensor.Tensor) *tensor.Tensor {
	y := tensor.New(x.Shape...)
	for i, v := range x.Data {
		y.Data[i] = math.Tanh(v)
	}
	t.y = y
	return y
}

func (t *Tanh) Backward(grad *tensor.Tensor) *tensor.Tensor {
	g := tensor.New(grad.Shape...)
	for i, v := range t.y.Data {
		g.Data[i] = grad.Data[i] * (1 - v*v)
	}
	return g
}

func sigmoid(v float64) float64 { return 1 / (1 + math.Exp(-v)) }
