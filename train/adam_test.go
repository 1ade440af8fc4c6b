package train

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurlang/sound2image/tensor"
)

func TestAdamMinimizesQuadratic(t *testing.T) {
	p := tensor.NewParam(2)
	p.Data[0], p.Data[1] = 5, -3
	params := []*tensor.Tensor{p}
	opt := NewAdam(params, 0.1, 0.9, 0.999)

	for i := 0; i < 500; i++ {
		for j := range p.Data {
			p.Grad[j] = 2 * p.Data[j]
		}
		opt.Step(params)
	}
	require.InDelta(t, 0, p.Data[0], 1e-3)
	require.InDelta(t, 0, p.Data[1], 1e-3)
}

func TestAdamFirstStepIsLearningRate(t *testing.T) {
	// bias correction makes the very first update exactly lr-sized
	p := tensor.NewParam(1)
	p.Data[0] = 1
	params := []*tensor.Tensor{p}
	opt := NewAdam(params, 0.01, 0.9, 0.999)

	p.Grad[0] = 0.5
	opt.Step(params)
	require.InDelta(t, 1-0.01, p.Data[0], 1e-6)
}

func TestAdamZeroBeta1(t *testing.T) {
	// the trainer runs with beta1 = 0; the update must stay finite
	p := tensor.NewParam(1)
	p.Data[0] = 2
	params := []*tensor.Tensor{p}
	opt := NewAdam(params, 0.001, 0, 0.99)

	for i := 0; i < 10; i++ {
		p.Grad[0] = p.Data[0]
		opt.Step(params)
	}
	require.Less(t, p.Data[0], 2.0)
	require.Greater(t, p.Data[0], 0.0)
}
