package tensor

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense n-dimensional array in row-major order. Grad is nil for
// plain activations and allocated for trainable parameters (and for
// activations that need an input-gradient buffer during backward).
type Tensor struct {
	Shape []int
	Data  []float64
	Grad  []float64
}

// New returns a zero-filled tensor of the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, numel(shape)),
	}
}

// NewFrom wraps data in a tensor of the given shape. The slice is not copied.
func NewFrom(data []float64, shape ...int) *Tensor {
	if len(data) != numel(shape) {
		panic(fmt.Sprintf("tensor: %d values cannot fill shape %v", len(data), shape))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}
}

// NewParam returns a zero-filled tensor with a gradient buffer attached.
func NewParam(shape ...int) *Tensor {
	t := New(shape...)
	t.Grad = make([]float64, len(t.Data))
	return t
}

// Randn fills a parameter tensor with samples from N(mean, std).
func Randn(rng *rand.Rand, mean, std float64, shape ...int) *Tensor {
	t := NewParam(shape...)
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64()*std + mean
	}
	return t
}

func numel(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Numel returns the number of elements.
func (t *Tensor) Numel() int { return len(t.Data) }

// Dim returns the size of axis i.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

// At reads the element at the given multi-index.
func (t *Tensor) At(idx ...int) float64 { return t.Data[t.offset(idx)] }

// Set writes the element at the given multi-index.
func (t *Tensor) Set(v float64, idx ...int) { t.Data[t.offset(idx)] = v }

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: index %v into shape %v", idx, t.Shape))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.Shape))
		}
		off = off*t.Shape[i] + x
	}
	return off
}

// Reshape returns a view with a new shape sharing the same buffers.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	if numel(shape) != len(t.Data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v to %v", t.Shape, shape))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: t.Data, Grad: t.Grad}
}

// Clone returns a deep copy (gradient buffer included when present).
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
	if t.Grad != nil {
		c.Grad = append([]float64(nil), t.Grad...)
	}
	return c
}

// ZeroGrad clears the gradient buffer, allocating it if needed.
func (t *Tensor) ZeroGrad() {
	if t.Grad == nil {
		t.Grad = make([]float64, len(t.Data))
		return
	}
	for i := range t.Grad {
		t.Grad[i] = 0
	}
}

// SameShape reports whether both tensors have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// Add accumulates o into t element-wise.
func (t *Tensor) Add(o *Tensor) {
	floats.Add(t.Data, o.Data)
}

// Scale multiplies every element by s.
func (t *Tensor) Scale(s float64) {
	floats.Scale(s, t.Data)
}

// Mean returns the arithmetic mean of all elements.
func (t *Tensor) Mean() float64 {
	if len(t.Data) == 0 {
		return 0
	}
	return floats.Sum(t.Data) / float64(len(t.Data))
}

// Norm returns the L2 norm of all elements.
func (t *Tensor) Norm() float64 {
	return floats.Norm(t.Data, 2)
}
