package nn

import (
	"math"
	"math/rand"

	"github.com/neurlang/sound2image/tensor"
)

// SelfAttention2d is the non-local attention layer inserted into the
// generator and discriminator stacks: key/query projections to C/8 channels,
// a value projection at full width, and a learned residual gate gamma that
// starts at zero so the layer comes online gradually.
type SelfAttention2d struct {
	C, C8 int

	Wf, Wg, Wh *Conv2d
	Gamma      *tensor.Tensor

	x          *tensor.Tensor
	f, g, h    *tensor.Tensor
	attn       []float64 // (B, N, N), attn[j*N+i] weights key i for query j
	o          []float64 // (B, C, N)
	hh, ww, nn int
}

// NewSelfAttention2d builds attention over c-channel feature maps.
func NewSelfAttention2d(rng *rand.Rand, c int, sn bool) *SelfAttention2d {
	c8 := c / 8
	if c8 < 1 {
		c8 = 1
	}
	return &SelfAttention2d{
		C:     c,
		C8:    c8,
		Wf:    NewConv2d(rng, c, c8, 1, 1, 0, false, sn),
		Wg:    NewConv2d(rng, c, c8, 1, 1, 0, false, sn),
		Wh:    NewConv2d(rng, c, c, 1, 1, 0, false, sn),
		Gamma: tensor.NewParam(1),
	}
}

func (s *SelfAttention2d) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{s.Gamma}
	params = append(params, s.Wf.Parameters()...)
	params = append(params, s.Wg.Parameters()...)
	params = append(params, s.Wh.Parameters()...)
	return params
}

func (s *SelfAttention2d) SetTrain(train bool) {
	s.Wf.SetTrain(train)
	s.Wg.SetTrain(train)
	s.Wh.SetTrain(train)
}

func (s *SelfAttention2d) State() [][]float64 {
	var state [][]float64
	state = append(state, s.Wf.State()...)
	state = append(state, s.Wg.State()...)
	state = append(state, s.Wh.State()...)
	return state
}

func (s *SelfAttention2d) Forward(x *tensor.Tensor) *tensor.Tensor {
	b, c, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	n := h * w
	s.x = x
	s.hh, s.ww, s.nn = h, w, n

	s.f = s.Wf.Forward(x)
	s.g = s.Wg.Forward(x)
	s.h = s.Wh.Forward(x)

	if len(s.attn) != b*n*n {
		s.attn = make([]float64, b*n*n)
	}
	if len(s.o) != b*c*n {
		s.o = make([]float64, b*c*n)
	}
	gamma := s.Gamma.Data[0]
	y := tensor.New(x.Shape...)
	tensor.ForEach(b, func(bi int) {
		f := s.f.Data[bi*s.C8*n : (bi+1)*s.C8*n]
		g := s.g.Data[bi*s.C8*n : (bi+1)*s.C8*n]
		hv := s.h.Data[bi*c*n : (bi+1)*c*n]
		attn := s.attn[bi*n*n : (bi+1)*n*n]
		o := s.o[bi*c*n : (bi+1)*c*n]

		// attn[j,i] = softmax_i( f(:,i) . g(:,j) )
		for j := 0; j < n; j++ {
			row := attn[j*n : (j+1)*n]
			maxE := math.Inf(-1)
			for i := 0; i < n; i++ {
				var e float64
				for ci := 0; ci < s.C8; ci++ {
					e += f[ci*n+i] * g[ci*n+j]
				}
				row[i] = e
				if e > maxE {
					maxE = e
				}
			}
			var sum float64
			for i := range row {
				row[i] = math.Exp(row[i] - maxE)
				sum += row[i]
			}
			inv := 1 / sum
			for i := range row {
				row[i] *= inv
			}
		}

		// o[c,j] = sum_i h[c,i] attn[j,i]
		for ci := 0; ci < c; ci++ {
			hc := hv[ci*n : (ci+1)*n]
			oc := o[ci*n : (ci+1)*n]
			for j := 0; j < n; j++ {
				row := attn[j*n : (j+1)*n]
				var sum float64
				for i := 0; i < n; i++ {
					sum += hc[i] * row[i]
				}
				oc[j] = sum
			}
		}

		off := bi * c * n
		for i := 0; i < c*n; i++ {
			y.Data[off+i] = x.Data[off+i] + gamma*o[i]
		}
	})
	return y
}

func (s *SelfAttention2d) Backward(grad *tensor.Tensor) *tensor.Tensor {
	b, c, n := grad.Shape[0], s.C, s.nn
	gamma := s.Gamma.Data[0]

	gradF := tensor.New(b, s.C8, s.hh, s.ww)
	gradG := tensor.New(b, s.C8, s.hh, s.ww)
	gradH := tensor.New(b, c, s.hh, s.ww)
	gammaGrad := make([]float64, b)

	tensor.ForEach(b, func(bi int) {
		f := s.f.Data[bi*s.C8*n : (bi+1)*s.C8*n]
		g := s.g.Data[bi*s.C8*n : (bi+1)*s.C8*n]
		hv := s.h.Data[bi*c*n : (bi+1)*c*n]
		attn := s.attn[bi*n*n : (bi+1)*n*n]
		o := s.o[bi*c*n : (bi+1)*c*n]
		dy := grad.Data[bi*c*n : (bi+1)*c*n]
		df := gradF.Data[bi*s.C8*n : (bi+1)*s.C8*n]
		dg := gradG.Data[bi*s.C8*n : (bi+1)*s.C8*n]
		dh := gradH.Data[bi*c*n : (bi+1)*c*n]

		var gg float64
		for i := 0; i < c*n; i++ {
			gg += dy[i] * o[i]
		}
		gammaGrad[bi] = gg

		// do = gamma * dy; dh[c,i] = sum_j do[c,j] attn[j,i]
		// dattn[j,i] = sum_c do[c,j] h[c,i]
		dattn := make([]float64, n*n)
		for ci := 0; ci < c; ci++ {
			doc := dy[ci*n : (ci+1)*n]
			hc := hv[ci*n : (ci+1)*n]
			dhc := dh[ci*n : (ci+1)*n]
			for j := 0; j < n; j++ {
				d := gamma * doc[j]
				if d == 0 {
					continue
				}
				row := attn[j*n : (j+1)*n]
				drow := dattn[j*n : (j+1)*n]
				for i := 0; i < n; i++ {
					dhc[i] += d * row[i]
					drow[i] += d * hc[i]
				}
			}
		}

		// softmax backward per query row, then into f and g
		for j := 0; j < n; j++ {
			row := attn[j*n : (j+1)*n]
			drow := dattn[j*n : (j+1)*n]
			var dot float64
			for i := 0; i < n; i++ {
				dot += drow[i] * row[i]
			}
			for i := 0; i < n; i++ {
				de := row[i] * (drow[i] - dot)
				if de == 0 {
					continue
				}
				for ci := 0; ci < s.C8; ci++ {
					df[ci*n+i] += de * g[ci*n+j]
					dg[ci*n+j] += de * f[ci*n+i]
				}
			}
		}
	})

	for _, gg := range gammaGrad {
		s.Gamma.Grad[0] += gg
	}

	gradIn := s.Wf.Backward(gradF)
	gradIn = addInto(gradIn, s.Wg.Backward(gradG))
	gradIn = addInto(gradIn, s.Wh.Backward(gradH))
	gradIn.Add(grad)
	return gradIn
}
