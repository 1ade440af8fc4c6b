package nn

import (
	"math/rand"

	"github.com/neurlang/sound2image/tensor"
)

// SEBlock is squeeze-excite channel gating: global average pool, a two-layer
// bottleneck MLP, then sigmoid-scaled channel reweighting.
type SEBlock struct {
	C, R int

	W1, B1 *tensor.Tensor // (C/r, C), (C/r)
	W2, B2 *tensor.Tensor // (C, C/r), (C)

	x     *tensor.Tensor
	z     []float64 // (B, C) pooled means
	a     []float64 // (B, C/r) post-relu bottleneck
	scale []float64 // (B, C) sigmoid gates
}

// NewSEBlock builds squeeze-excite gating over c channels with the standard
// reduction ratio of 16 (floored at one hidden unit).
func NewSEBlock(rng *rand.Rand, c int) *SEBlock {
	r := c / 16
	if r < 1 {
		r = 1
	}
	return &SEBlock{
		C:  c,
		R:  r,
		W1: tensor.Randn(rng, 0, 0.02, r, c),
		B1: tensor.NewParam(r),
		W2: tensor.Randn(rng, 0, 0.02, c, r),
		B2: tensor.NewParam(c),
	}
}

func (s *SEBlock) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{s.W1, s.B1, s.W2, s.B2}
}

func (s *SEBlock) SetTrain(bool) {}

func (s *SEBlock) Forward(x *tensor.Tensor) *tensor.Tensor {
	b, c, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	plane := h * w
	s.x = x
	if len(s.z) != b*c {
		s.z = make([]float64, b*c)
		s.scale = make([]float64, b*c)
	}
	if len(s.a) != b*s.R {
		s.a = make([]float64, b*s.R)
	}

	y := tensor.New(x.Shape...)
	tensor.ForEach(b, func(bi int) {
		z := s.z[bi*c : (bi+1)*c]
		a := s.a[bi*s.R : (bi+1)*s.R]
		sc := s.scale[bi*c : (bi+1)*c]
		for ci := 0; ci < c; ci++ {
			off := (bi*c + ci) * plane
			var sum float64
			for i := 0; i < plane; i++ {
				sum += x.Data[off+i]
			}
			z[ci] = sum / float64(plane)
		}
		for ri := 0; ri < s.R; ri++ {
			v := s.B1.Data[ri]
			row := s.W1.Data[ri*c : (ri+1)*c]
			for ci := 0; ci < c; ci++ {
				v += row[ci] * z[ci]
			}
			if v < 0 {
				v = 0
			}
			a[ri] = v
		}
		for ci := 0; ci < c; ci++ {
			v := s.B2.Data[ci]
			row := s.W2.Data[ci*s.R : (ci+1)*s.R]
			for ri := 0; ri < s.R; ri++ {
				v += row[ri] * a[ri]
			}
			sc[ci] = sigmoid(v)
			off := (bi*c + ci) * plane
			for i := 0; i < plane; i++ {
				y.Data[off+i] = x.Data[off+i] * sc[ci]
			}
		}
	})
	return y
}

func (s *SEBlock) Backward(grad *tensor.Tensor) *tensor.Tensor {
	b, c, h, w := s.x.Shape[0], s.x.Shape[1], s.x.Shape[2], s.x.Shape[3]
	plane := h * w
	g := tensor.New(s.x.Shape...)

	// per-batch parameter gradients are staged locally and folded in
	// serially afterwards
	type accum struct {
		w1, b1, w2, b2 []float64
	}
	accums := make([]accum, b)
	tensor.ForEach(b, func(bi int) {
		z := s.z[bi*c : (bi+1)*c]
		a := s.a[bi*s.R : (bi+1)*s.R]
		sc := s.scale[bi*c : (bi+1)*c]
		ac := accum{
			w1: make([]float64, s.R*c),
			b1: make([]float64, s.R),
			w2: make([]float64, c*s.R),
			b2: make([]float64, c),
		}

		da := make([]float64, s.R)
		dz := make([]float64, c)
		for ci := 0; ci < c; ci++ {
			off := (bi*c + ci) * plane
			var ds float64
			for i := 0; i < plane; i++ {
				dy := grad.Data[off+i]
				g.Data[off+i] = dy * sc[ci]
				ds += dy * s.x.Data[off+i]
			}
			dv := ds * sc[ci] * (1 - sc[ci])
			ac.b2[ci] += dv
			row := s.W2.Data[ci*s.R : (ci+1)*s.R]
			for ri := 0; ri < s.R; ri++ {
				ac.w2[ci*s.R+ri] += dv * a[ri]
				da[ri] += dv * row[ri]
			}
		}
		for ri := 0; ri < s.R; ri++ {
			if a[ri] <= 0 {
				continue
			}
			ac.b1[ri] += da[ri]
			row := s.W1.Data[ri*c : (ri+1)*c]
			for ci := 0; ci < c; ci++ {
				ac.w1[ri*c+ci] += da[ri] * z[ci]
				dz[ci] += da[ri] * row[ci]
			}
		}
		for ci := 0; ci < c; ci++ {
			d := dz[ci] / float64(plane)
			off := (bi*c + ci) * plane
			for i := 0; i < plane; i++ {
				g.Data[off+i] += d
			}
		}
		accums[bi] = ac
	})
	for _, ac := range accums {
		for i, v := range ac.w1 {
			s.W1.Grad[i] += v
		}
		for i, v := range ac.b1 {
			s.B1.Grad[i] += v
		}
		for i, v := range ac.w2 {
			s.W2.Grad[i] += v
		}
		for i, v := range ac.b2 {
			s.B2.Grad[i] += v
		}
	}
	return g
}
