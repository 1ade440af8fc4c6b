package train

import (
	"math"

	"github.com/neurlang/sound2image/tensor"
)

// Adam applies the Adam update rule with bias-corrected moment estimates.
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	step int
	m    [][]float64
	v    [][]float64
}

// NewAdam builds an optimizer over the given parameter list. Step must be
// called with the same list in the same order.
func NewAdam(params []*tensor.Tensor, lr, beta1, beta2 float64) *Adam {
	a := &Adam{
		lr:    lr,
		beta1: beta1,
		beta2: beta2,
		eps:   1e-8,
		m:     make([][]float64, len(params)),
		v:     make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Data))
		a.v[i] = make([]float64, len(p.Data))
	}
	return a
}

// Step applies one update from the gradients accumulated in params.
func (a *Adam) Step(params []*tensor.Tensor) {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))
	for i, p := range params {
		m, v := a.m[i], a.v[i]
		for j, g := range p.Grad {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			mhat := m[j] / c1
			vhat := v[j] / c2
			p.Data[j] -= a.lr * mhat / (math.Sqrt(vhat) + a.eps)
		}
	}
}
