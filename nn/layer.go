package nn

import "github.com/neurlang/sound2image/tensor"

// Layer is a differentiable network stage. Backward must be called with the
// gradient of the loss with respect to the output of the most recent Forward.
type Layer interface {
	Forward(x *tensor.Tensor) *tensor.Tensor
	Backward(grad *tensor.Tensor) *tensor.Tensor
	Parameters() []*tensor.Tensor
	SetTrain(train bool)
}

// base supplies the no-op parts of Layer for stateless layers.
type base struct{}

func (base) Parameters() []*tensor.Tensor { return nil }
func (base) SetTrain(bool)                {}

// Identity passes values and gradients through unchanged. It stands in for
// disabled optional stages (attention, normalization, gating) so forward
// passes never branch on nil fields.
type Identity struct{ base }

func (Identity) Forward(x *tensor.Tensor) *tensor.Tensor  { return x }
func (Identity) Backward(g *tensor.Tensor) *tensor.Tensor { return g }

// Sequential chains layers in order.
type Sequential struct {
	layers []Layer
}

// NewSequential builds a chain from the given layers.
func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{layers: layers}
}

// Append adds layers to the end of the chain.
func (s *Sequential) Append(layers ...Layer) {
	s.layers = append(s.layers, layers...)
}

func (s *Sequential) Forward(x *tensor.Tensor) *tensor.Tensor {
	for _, l := range s.layers {
		x = l.Forward(x)
	}
	return x
}

func (s *Sequential) Backward(grad *tensor.Tensor) *tensor.Tensor {
	for i := len(s.layers) - 1; i >= 0; i-- {
		grad = s.layers[i].Backward(grad)
	}
	return grad
}

func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, l := range s.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

func (s *Sequential) SetTrain(train bool) {
	for _, l := range s.layers {
		l.SetTrain(train)
	}
}

func (s *Sequential) State() [][]float64 {
	var state [][]float64
	for _, l := range s.layers {
		state = append(state, StateOf(l)...)
	}
	return state
}

// Stateful layers carry buffers the optimizer never touches but that must
// survive a save/load round trip, such as running statistics. State returns
// the live buffers so loading can copy into them in place.
type Stateful interface {
	State() [][]float64
}

// StateOf returns the persistent buffers of l, or nil for stateless layers.
func StateOf(l Layer) [][]float64 {
	if s, ok := l.(Stateful); ok {
		return s.State()
	}
	return nil
}

// ZeroGrad clears the gradients of every parameter in params.
func ZeroGrad(params []*tensor.Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// addInto accumulates src into dst element-wise and returns dst.
func addInto(dst, src *tensor.Tensor) *tensor.Tensor {
	dst.Add(src)
	return dst
}
