package nn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurlang/sound2image/tensor"
)

const (
	fdEps = 1e-5
	fdTol = 1e-5
)

// sumLoss runs a forward pass and reduces the output to a scalar, the loss
// the finite-difference probes differentiate.
func sumLoss(l Layer, x *tensor.Tensor) float64 {
	y := l.Forward(x)
	var s float64
	for _, v := range y.Data {
		s += v
	}
	return s
}

// checkGrads verifies every input and parameter gradient of l against
// central finite differences of the summed output.
func checkGrads(t *testing.T, l Layer, x *tensor.Tensor) {
	t.Helper()

	y := l.Forward(x)
	ones := tensor.New(y.Shape...)
	for i := range ones.Data {
		ones.Data[i] = 1
	}
	ZeroGrad(l.Parameters())
	inGrad := l.Backward(ones).Clone()

	for i := range x.Data {
		old := x.Data[i]
		x.Data[i] = old + fdEps
		lp := sumLoss(l, x)
		x.Data[i] = old - fdEps
		lm := sumLoss(l, x)
		x.Data[i] = old
		want := (lp - lm) / (2 * fdEps)
		require.InDeltaf(t, want, inGrad.Data[i], fdTol, "input grad %d", i)
	}

	for pi, p := range l.Parameters() {
		grad := append([]float64(nil), p.Grad...)
		for i := range p.Data {
			old := p.Data[i]
			p.Data[i] = old + fdEps
			lp := sumLoss(l, x)
			p.Data[i] = old - fdEps
			lm := sumLoss(l, x)
			p.Data[i] = old
			want := (lp - lm) / (2 * fdEps)
			require.InDeltaf(t, want, grad[i], fdTol, "param %d grad %d", pi, i)
		}
	}
}
