package mel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/stat"

	"github.com/neurlang/sound2image/tensor"
)

// Stats holds the dataset-wide moments used to standardize feature pairs.
type Stats struct {
	SpecMean float64 `json:"spec_mean"`
	SpecStd  float64 `json:"spec_std"`
	IFMean   float64 `json:"if_mean"`
	IFStd    float64 `json:"if_std"`
}

// SpecSource yields (log-mel, instantaneous-frequency) pairs one at a time
// and returns io.EOF when exhausted.
type SpecSource interface {
	NextSpec() (spec, iff *tensor.Tensor, err error)
}

// Normalizer standardizes both feature channels to zero mean and unit
// variance using moments fitted once over the whole training set.
type Normalizer struct {
	Stats Stats
}

var ErrEmptySource = errors.New("mel: no samples to fit normalizer")

// LoadOrFit reads cached moments from path, or fits them from src and writes
// the cache. Refitting with the cache present never touches src, so repeated
// training runs see identical statistics.
func LoadOrFit(path string, src SpecSource) (*Normalizer, error) {
	if data, err := os.ReadFile(path); err == nil {
		var st Stats
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, err
		}
		return &Normalizer{Stats: st}, nil
	}
	if src == nil {
		return nil, fmt.Errorf("mel: normalizer cache %s is missing and no samples were given", path)
	}

	st, err := fit(src)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return &Normalizer{Stats: st}, nil
}

func fit(src SpecSource) (Stats, error) {
	var st Stats
	var specN, ifN float64
	var specM2, ifM2 float64
	for {
		spec, iff, err := src.NextSpec()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Stats{}, err
		}
		mean, variance := stat.MeanVariance(spec.Data, nil)
		n := float64(len(spec.Data))
		specM2, st.SpecMean, specN = pool(specM2, st.SpecMean, specN, variance*(n-1), mean, n)

		mean, variance = stat.MeanVariance(iff.Data, nil)
		n = float64(len(iff.Data))
		ifM2, st.IFMean, ifN = pool(ifM2, st.IFMean, ifN, variance*(n-1), mean, n)
	}
	if specN == 0 {
		return Stats{}, ErrEmptySource
	}
	st.SpecStd = math.Sqrt(specM2 / specN)
	st.IFStd = math.Sqrt(ifM2 / ifN)
	if st.SpecStd == 0 {
		st.SpecStd = 1
	}
	if st.IFStd == 0 {
		st.IFStd = 1
	}
	return st, nil
}

// pool merges the sum of squared deviations of two sample groups.
func pool(m2a, meanA, na, m2b, meanB, nb float64) (m2, mean, n float64) {
	n = na + nb
	if n == 0 {
		return 0, 0, 0
	}
	delta := meanB - meanA
	mean = meanA + delta*nb/n
	m2 = m2a + m2b + delta*delta*na*nb/n
	return m2, mean, n
}

// Apply standardizes a feature pair in place and returns the same tensors.
func (z *Normalizer) Apply(spec, iff *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	for i := range spec.Data {
		spec.Data[i] = (spec.Data[i] - z.Stats.SpecMean) / z.Stats.SpecStd
	}
	for i := range iff.Data {
		iff.Data[i] = (iff.Data[i] - z.Stats.IFMean) / z.Stats.IFStd
	}
	return spec, iff
}

// Denormalize undoes Apply on the magnitude channel, for feature pairs headed
// back through the inverse transform.
func (z *Normalizer) Denormalize(spec *tensor.Tensor) *tensor.Tensor {
	for i := range spec.Data {
		spec.Data[i] = spec.Data[i]*z.Stats.SpecStd + z.Stats.SpecMean
	}
	return spec
}
