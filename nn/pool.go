package nn

import (
	"math/rand"

	"github.com/neurlang/sound2image/tensor"
)

// Upsample2d doubles both spatial dimensions by nearest-neighbour copying.
type Upsample2d struct {
	base
	inShape []int
}

func (u *Upsample2d) Forward(x *tensor.Tensor) *tensor.Tensor {
	b, c, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	u.inShape = x.Shape
	y := tensor.New(b, c, 2*h, 2*w)
	tensor.ForEach(b, func(bi int) {
		for ci := 0; ci < c; ci++ {
			in := (bi*c + ci) * h * w
			out := (bi*c + ci) * 4 * h * w
			for iy := 0; iy < h; iy++ {
				for ix := 0; ix < w; ix++ {
					v := x.Data[in+iy*w+ix]
					o := out + 2*iy*2*w + 2*ix
					y.Data[o] = v
					y.Data[o+1] = v
					y.Data[o+2*w] = v
					y.Data[o+2*w+1] = v
				}
			}
		}
	})
	return y
}

func (u *Upsample2d) Backward(grad *tensor.Tensor) *tensor.Tensor {
	b, c, h, w := u.inShape[0], u.inShape[1], u.inShape[2], u.inShape[3]
	g := tensor.New(u.inShape...)
	tensor.ForEach(b, func(bi int) {
		for ci := 0; ci < c; ci++ {
			in := (bi*c + ci) * h * w
			out := (bi*c + ci) * 4 * h * w
			for iy := 0; iy < h; iy++ {
				for ix := 0; ix < w; ix++ {
					o := out + 2*iy*2*w + 2*ix
					g.Data[in+iy*w+ix] = grad.Data[o] + grad.Data[o+1] +
						grad.Data[o+2*w] + grad.Data[o+2*w+1]
				}
			}
		}
	})
	return g
}

// AvgPool2d halves both spatial dimensions with a 2x2 window, stride 2.
type AvgPool2d struct {
	base
	inShape []int
}

func (p *AvgPool2d) Forward(x *tensor.Tensor) *tensor.Tensor {
	b, c, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	p.inShape = x.Shape
	oh, ow := h/2, w/2
	y := tensor.New(b, c, oh, ow)
	tensor.ForEach(b, func(bi int) {
		for ci := 0; ci < c; ci++ {
			in := (bi*c + ci) * h * w
			out := (bi*c + ci) * oh * ow
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					i := in + 2*oy*w + 2*ox
					y.Data[out+oy*ow+ox] = (x.Data[i] + x.Data[i+1] + x.Data[i+w] + x.Data[i+w+1]) * 0.25
				}
			}
		}
	})
	return y
}

func (p *AvgPool2d) Backward(grad *tensor.Tensor) *tensor.Tensor {
	b, c, h, w := p.inShape[0], p.inShape[1], p.inShape[2], p.inShape[3]
	oh, ow := h/2, w/2
	g := tensor.New(p.inShape...)
	tensor.ForEach(b, func(bi int) {
		for ci := 0; ci < c; ci++ {
			in := (bi*c + ci) * h * w
			out := (bi*c + ci) * oh * ow
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					d := grad.Data[out+oy*ow+ox] * 0.25
					i := in + 2*oy*w + 2*ox
					g.Data[i] = d
					g.Data[i+1] = d
					g.Data[i+w] = d
					g.Data[i+w+1] = d
				}
			}
		}
	})
	return g
}

// AdaptiveAvgPool2d averages the input down to a fixed spatial size, splitting
// each axis into near-equal regions.
type AdaptiveAvgPool2d struct {
	base
	OutH, OutW int
	inShape    []int
}

// NewAdaptiveAvgPool2d pools to an outH x outW output.
func NewAdaptiveAvgPool2d(outH, outW int) *AdaptiveAvgPool2d {
	return &AdaptiveAvgPool2d{OutH: outH, OutW: outW}
}

func region(i, in, out int) (int, int) {
	lo := i * in / out
	hi := ((i + 1) * in) / out
	if (i+1)*in%out != 0 {
		hi++
	}
	if hi > in {
		hi = in
	}
	return lo, hi
}

func (p *AdaptiveAvgPool2d) Forward(x *tensor.Tensor) *tensor.Tensor {
	b, c, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	p.inShape = x.Shape
	y := tensor.New(b, c, p.OutH, p.OutW)
	tensor.ForEach(b, func(bi int) {
		for ci := 0; ci < c; ci++ {
			in := (bi*c + ci) * h * w
			out := (bi*c + ci) * p.OutH * p.OutW
			for oy := 0; oy < p.OutH; oy++ {
				y0, y1 := region(oy, h, p.OutH)
				for ox := 0; ox < p.OutW; ox++ {
					x0, x1 := region(ox, w, p.OutW)
					var sum float64
					for iy := y0; iy < y1; iy++ {
						for ix := x0; ix < x1; ix++ {
							sum += x.Data[in+iy*w+ix]
						}
					}
					y.Data[out+oy*p.OutW+ox] = sum / float64((y1-y0)*(x1-x0))
				}
			}
		}
	})
	return y
}

func (p *AdaptiveAvgPool2d) Backward(grad *tensor.Tensor) *tensor.Tensor {
	b, c, h, w := p.inShape[0], p.inShape[1], p.inShape[2], p.inShape[3]
	g := tensor.New(p.inShape...)
	tensor.ForEach(b, func(bi int) {
		for ci := 0; ci < c; ci++ {
			in := (bi*c + ci) * h * w
			out := (bi*c + ci) * p.OutH * p.OutW
			for oy := 0; oy < p.OutH; oy++ {
				y0, y1 := region(oy, h, p.OutH)
				for ox := 0; ox < p.OutW; ox++ {
					x0, x1 := region(ox, w, p.OutW)
					d := grad.Data[out+oy*p.OutW+ox] / float64((y1-y0)*(x1-x0))
					for iy := y0; iy < y1; iy++ {
						for ix := x0; ix < x1; ix++ {
							g.Data[in+iy*w+ix] += d
						}
					}
				}
			}
		}
	})
	return g
}

// Dropout zeroes activations with probability P during training (inverted
// scaling keeps expectations unchanged); it is the identity in eval mode.
type Dropout struct {
	P     float64
	rng   *rand.Rand
	train bool
	mask  []float64
}

// NewDropout builds a dropout layer with drop probability p.
func NewDropout(rng *rand.Rand, p float64) *Dropout {
	return &Dropout{P: p, rng: rng, train: true}
}

func (d *Dropout) Parameters() []*tensor.Tensor { return nil }
func (d *Dropout) SetTrain(train bool)          { d.train = train }

func (d *Dropout) Forward(x *tensor.Tensor) *tensor.Tensor {
	if !d.train || d.P <= 0 {
		d.mask = nil
		return x
	}
	if d.mask == nil || len(d.mask) != len(x.Data) {
		d.mask = make([]float64, len(x.Data))
	}
	keep := 1 - d.P
	y := tensor.New(x.Shape...)
	for i := range x.Data {
		if d.rng.Float64() < keep {
			d.mask[i] = 1 / keep
			y.Data[i] = x.Data[i] / keep
		} else {
			d.mask[i] = 0
		}
	}
	return y
}

func (d *Dropout) Backward(grad *tensor.Tensor) *tensor.Tensor {
	if d.mask == nil {
		return grad
	}
	g := tensor.New(grad.Shape...)
	for i := range grad.Data {
		g.Data[i] = grad.Data[i] * d.mask[i]
	}
	return g
}
