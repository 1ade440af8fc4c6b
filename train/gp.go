package train

import (
	"math"
	"math/rand"

	"github.com/neurlang/sound2image/nn"
	"github.com/neurlang/sound2image/tensor"
)

// Critic is the forward/backward surface the gradient penalty needs from the
// discriminator.
type Critic interface {
	Forward(x *tensor.Tensor) *tensor.Tensor
	Backward(grad *tensor.Tensor) *tensor.Tensor
}

// fdStep is the perturbation used when estimating how the input-gradient
// norm moves with the critic weights.
const fdStep = 1e-3

// Interpolate blends real and fake images per sample with a uniform weight,
// producing the points the Lipschitz constraint is enforced at.
func Interpolate(rng *rand.Rand, real, fake *tensor.Tensor) *tensor.Tensor {
	b := real.Shape[0]
	per := len(real.Data) / b
	out := tensor.New(real.Shape...)
	for i := 0; i < b; i++ {
		eps := rng.Float64()
		for j := i * per; j < (i+1)*per; j++ {
			out.Data[j] = eps*real.Data[j] + (1-eps)*fake.Data[j]
		}
	}
	return out
}

// GradientPenalty returns λ·mean((‖∇ₓD(x̂)‖−1)²) over the interpolated batch
// and accumulates the gradient of that penalty into the critic parameters.
//
// The penalty value is exact. Its parameter gradient needs a derivative of
// the input gradient, which the layers do not provide, so it is estimated by
// central differences of D along the normalized input-gradient direction:
// two extra forward/backward passes whose output gradients are weighted by
// λ·2(‖∇ₓD‖−1)/(B·2h). Parameter gradients accumulated before the call are
// discarded; real and fake loss terms must be backpropagated afterwards.
func GradientPenalty(critic Critic, params []*tensor.Tensor, interp *tensor.Tensor, lambda float64) float64 {
	b := interp.Shape[0]
	per := len(interp.Data) / b

	ones := tensor.New(b, 1, 1, 1)
	for i := range ones.Data {
		ones.Data[i] = 1
	}
	critic.Forward(interp)
	inGrad := critic.Backward(ones)

	// The direction pass polluted the parameter gradients; the penalty
	// terms below are accumulated from a clean slate.
	nn.ZeroGrad(params)

	norms := make([]float64, b)
	penalty := 0.0
	for i := 0; i < b; i++ {
		var sq float64
		for j := i * per; j < (i+1)*per; j++ {
			g := inGrad.Data[j]
			sq += g * g
		}
		norms[i] = math.Sqrt(sq)
		diff := norms[i] - 1
		penalty += diff * diff
	}
	penalty = lambda * penalty / float64(b)

	plus := tensor.New(interp.Shape...)
	minus := tensor.New(interp.Shape...)
	wPlus := tensor.New(b, 1, 1, 1)
	wMinus := tensor.New(b, 1, 1, 1)
	for i := 0; i < b; i++ {
		scale := 0.0
		if norms[i] > 0 {
			scale = fdStep / norms[i]
		}
		for j := i * per; j < (i+1)*per; j++ {
			d := inGrad.Data[j] * scale
			plus.Data[j] = interp.Data[j] + d
			minus.Data[j] = interp.Data[j] - d
		}
		w := lambda * 2 * (norms[i] - 1) / (float64(b) * 2 * fdStep)
		wPlus.Data[i] = w
		wMinus.Data[i] = -w
	}

	critic.Forward(plus)
	critic.Backward(wPlus)
	critic.Forward(minus)
	critic.Backward(wMinus)

	return penalty
}
