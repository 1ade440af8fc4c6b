package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/neurlang/sound2image/tensor"
)

// Conv2d is a strided 2D convolution over NCHW tensors. With spectral
// normalization enabled the effective kernel is W/σ where σ is the largest
// singular value of W flattened to (outC, inC*k*k), estimated by one power
// iteration per training forward pass.
type Conv2d struct {
	InC, OutC, Kernel, Stride, Pad int

	W *tensor.Tensor // (outC, inC, k, k)
	B *tensor.Tensor // (outC), nil when bias is disabled

	sn    *spectralNorm
	train bool

	x      *tensor.Tensor
	wEff   []float64
	oh, ow int
}

// NewConv2d constructs a convolution with weights drawn from N(0, 0.02) and
// zero bias.
func NewConv2d(rng *rand.Rand, inC, outC, kernel, stride, pad int, bias, sn bool) *Conv2d {
	c := &Conv2d{
		InC:    inC,
		OutC:   outC,
		Kernel: kernel,
		Stride: stride,
		Pad:    pad,
		W:      tensor.Randn(rng, 0, 0.02, outC, inC, kernel, kernel),
		train:  true,
	}
	if bias {
		c.B = tensor.NewParam(outC)
	}
	if sn {
		c.sn = newSpectralNorm(rng, outC, inC*kernel*kernel)
	}
	return c
}

func (c *Conv2d) Parameters() []*tensor.Tensor {
	if c.B == nil {
		return []*tensor.Tensor{c.W}
	}
	return []*tensor.Tensor{c.W, c.B}
}

func (c *Conv2d) SetTrain(train bool) { c.train = train }

func (c *Conv2d) State() [][]float64 {
	if c.sn == nil {
		return nil
	}
	return [][]float64{c.sn.u}
}

// weights returns the kernel used for this forward pass.
func (c *Conv2d) weights() []float64 {
	if c.sn == nil {
		return c.W.Data
	}
	return c.sn.normalized(c.W.Data, c.train)
}

func (c *Conv2d) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Shape[1] != c.InC {
		panic(fmt.Sprintf("nn: conv expects %d input channels, got shape %v", c.InC, x.Shape))
	}
	c.x = x
	b, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	oh := (h+2*c.Pad-c.Kernel)/c.Stride + 1
	ow := (w+2*c.Pad-c.Kernel)/c.Stride + 1
	c.oh, c.ow = oh, ow
	wEff := c.weights()
	c.wEff = wEff

	y := tensor.New(b, c.OutC, oh, ow)
	k := c.Kernel
	tensor.ForEach(b, func(bi int) {
		xoff := bi * c.InC * h * w
		yoff := bi * c.OutC * oh * ow
		for oc := 0; oc < c.OutC; oc++ {
			woc := oc * c.InC * k * k
			bias := 0.0
			if c.B != nil {
				bias = c.B.Data[oc]
			}
			for oy := 0; oy < oh; oy++ {
				iy0 := oy*c.Stride - c.Pad
				for ox := 0; ox < ow; ox++ {
					ix0 := ox*c.Stride - c.Pad
					sum := bias
					for ic := 0; ic < c.InC; ic++ {
						xic := xoff + ic*h*w
						wic := woc + ic*k*k
						for ky := 0; ky < k; ky++ {
							iy := iy0 + ky
							if iy < 0 || iy >= h {
								continue
							}
							xrow := xic + iy*w
							wrow := wic + ky*k
							for kx := 0; kx < k; kx++ {
								ix := ix0 + kx
								if ix < 0 || ix >= w {
									continue
								}
								sum += x.Data[xrow+ix] * wEff[wrow+kx]
							}
						}
					}
					y.Data[yoff+oc*oh*ow+oy*ow+ox] = sum
				}
			}
		}
	})
	return y
}

func (c *Conv2d) Backward(grad *tensor.Tensor) *tensor.Tensor {
	x := c.x
	b, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	oh, ow := c.oh, c.ow
	k := c.Kernel

	// Weight and bias gradients, one output channel per worker so no two
	// goroutines touch the same accumulator.
	gradW := make([]float64, len(c.W.Data))
	tensor.ForEach(c.OutC, func(oc int) {
		woc := oc * c.InC * k * k
		var gb float64
		for bi := 0; bi < b; bi++ {
			xoff := bi * c.InC * h * w
			goff := bi*c.OutC*oh*ow + oc*oh*ow
			for oy := 0; oy < oh; oy++ {
				iy0 := oy*c.Stride - c.Pad
				for ox := 0; ox < ow; ox++ {
					g := grad.Data[goff+oy*ow+ox]
					if g == 0 {
						continue
					}
					gb += g
					ix0 := ox*c.Stride - c.Pad
					for ic := 0; ic < c.InC; ic++ {
						xic := xoff + ic*h*w
						wic := woc + ic*k*k
						for ky := 0; ky < k; ky++ {
							iy := iy0 + ky
							if iy < 0 || iy >= h {
								continue
							}
							xrow := xic + iy*w
							wrow := wic + ky*k
							for kx := 0; kx < k; kx++ {
								ix := ix0 + kx
								if ix < 0 || ix >= w {
									continue
								}
								gradW[wrow+kx] += x.Data[xrow+ix] * g
							}
						}
					}
				}
			}
		}
		if c.B != nil {
			c.B.Grad[oc] += gb
		}
	})
	if c.sn == nil {
		floats.Add(c.W.Grad, gradW)
	} else {
		c.sn.accumulate(c.W, gradW)
	}

	gradIn := tensor.New(x.Shape...)
	wEff := c.wEff
	tensor.ForEach(b, func(bi int) {
		xoff := bi * c.InC * h * w
		for oc := 0; oc < c.OutC; oc++ {
			woc := oc * c.InC * k * k
			goff := bi*c.OutC*oh*ow + oc*oh*ow
			for oy := 0; oy < oh; oy++ {
				iy0 := oy*c.Stride - c.Pad
				for ox := 0; ox < ow; ox++ {
					g := grad.Data[goff+oy*ow+ox]
					if g == 0 {
						continue
					}
					ix0 := ox*c.Stride - c.Pad
					for ic := 0; ic < c.InC; ic++ {
						xic := xoff + ic*h*w
						wic := woc + ic*k*k
						for ky := 0; ky < k; ky++ {
							iy := iy0 + ky
							if iy < 0 || iy >= h {
								continue
							}
							xrow := xic + iy*w
							wrow := wic + ky*k
							for kx := 0; kx < k; kx++ {
								ix := ix0 + kx
								if ix < 0 || ix >= w {
									continue
								}
								gradIn.Data[xrow+ix] += wEff[wrow+kx] * g
							}
						}
					}
				}
			}
		}
	})
	return gradIn
}

// spectralNorm holds the persistent left singular vector estimate and the
// per-forward factors needed to map gradients of W/σ back onto W.
type spectralNorm struct {
	rows, cols int
	u, v       []float64
	sigma      float64
	what       []float64
}

func newSpectralNorm(rng *rand.Rand, rows, cols int) *spectralNorm {
	s := &spectralNorm{
		rows: rows,
		cols: cols,
		u:    make([]float64, rows),
		v:    make([]float64, cols),
		what: make([]float64, rows*cols),
	}
	for i := range s.u {
		s.u[i] = rng.NormFloat64()
	}
	normalize(s.u)
	return s
}

const snEps = 1e-12

func normalize(v []float64) {
	n := floats.Norm(v, 2)
	floats.Scale(1/(n+snEps), v)
}

// normalized returns w/σ. During training one power iteration refreshes u
// first; in eval mode u is left untouched so repeated forwards are
// deterministic.
func (s *spectralNorm) normalized(w []float64, train bool) []float64 {
	if train {
		// v = normalize(Wᵀu)
		for j := range s.v {
			s.v[j] = 0
		}
		for i := 0; i < s.rows; i++ {
			ui := s.u[i]
			row := w[i*s.cols : (i+1)*s.cols]
			floats.AddScaled(s.v, ui, row)
		}
		normalize(s.v)
		// u = normalize(Wv)
		for i := 0; i < s.rows; i++ {
			s.u[i] = floats.Dot(w[i*s.cols:(i+1)*s.cols], s.v)
		}
		normalize(s.u)
	} else {
		for j := range s.v {
			s.v[j] = 0
		}
		for i := 0; i < s.rows; i++ {
			floats.AddScaled(s.v, s.u[i], w[i*s.cols:(i+1)*s.cols])
		}
		normalize(s.v)
	}
	s.sigma = 0
	for i := 0; i < s.rows; i++ {
		s.sigma += s.u[i] * floats.Dot(w[i*s.cols:(i+1)*s.cols], s.v)
	}
	if s.sigma < snEps {
		s.sigma = snEps
	}
	inv := 1 / s.sigma
	for i := range w {
		s.what[i] = w[i] * inv
	}
	return s.what
}

// accumulate adds the gradient with respect to W given gradWhat, the gradient
// with respect to W/σ, treating u and v as constants:
//
//	dL/dW = (1/σ) (dL/dŴ − ⟨dL/dŴ, Ŵ⟩ uvᵀ)
func (s *spectralNorm) accumulate(w *tensor.Tensor, gradWhat []float64) {
	dot := floats.Dot(gradWhat, s.what)
	inv := 1 / s.sigma
	for i := 0; i < s.rows; i++ {
		ui := s.u[i]
		row := w.Grad[i*s.cols : (i+1)*s.cols]
		g := gradWhat[i*s.cols : (i+1)*s.cols]
		for j := range row {
			row[j] += inv * (g[j] - dot*ui*s.v[j])
		}
	}
}
