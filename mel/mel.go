package mel

import (
	"errors"
	"fmt"
	"math"

	"github.com/r9y9/gossp/stft"

	"github.com/neurlang/sound2image/tensor"
)

// Extractor holds the analysis configuration for generating the paired
// (log-mel, instantaneous-frequency) features.
type Extractor struct {
	NumMels int
	Frames  int
	MelFmin float64
	MelFmax float64
	Window  int // frame shift in samples
	Resolut int // FFT length

	GriffinLimIterations int
}

// NewExtractor creates an Extractor with the geometry the networks expect:
// 1024 frames of 128 mel bands.
func NewExtractor() *Extractor {
	return &Extractor{
		NumMels: 128,
		Frames:  1024,
		MelFmin: 0,
		MelFmax: 8000,
		Window:  256,
		Resolut: 2048,

		GriffinLimIterations: 2,
	}
}

var ErrFileNotLoaded = errors.New("wavNotLoaded")

// samples returns the waveform length that yields exactly Frames STFT
// windows.
func (m *Extractor) samples() int {
	return (m.Frames-1)*m.Window + m.Resolut
}

// fit trims or zero-pads buf to the exact analysis length.
func (m *Extractor) fit(buf []float64) []float64 {
	want := m.samples()
	if len(buf) >= want {
		return buf[:want]
	}
	out := make([]float64, want)
	copy(out, buf)
	return out
}

// Features computes the log-mel spectrogram and the mel-scale instantaneous
// frequency of a mono waveform. Both outputs have shape (Frames, NumMels).
func (m *Extractor) Features(buf []float64) (logMel, melIF *tensor.Tensor, err error) {
	if len(buf) == 0 {
		return nil, nil, ErrFileNotLoaded
	}
	buf = m.fit(buf)

	s := stft.New(m.Window, m.Resolut)
	spectrum := s.STFT(buf)
	if len(spectrum) < m.Frames {
		return nil, nil, fmt.Errorf("mel: got %d frames, want %d", len(spectrum), m.Frames)
	}
	spectrum = spectrum[:m.Frames]

	half := m.Resolut / 2
	mag := make([][]float64, m.Frames)
	phase := make([][]float64, m.Frames)
	for i, frame := range spectrum {
		mag[i] = make([]float64, half)
		phase[i] = make([]float64, half)
		for j := 0; j < half; j++ {
			v := frame[j]
			mag[i][j] = math.Hypot(real(v), imag(v))
			phase[i][j] = math.Atan2(imag(v), real(v))
		}
	}

	logMel = tensor.New(m.Frames, m.NumMels)
	melIF = tensor.New(m.Frames, m.NumMels)
	centers := m.melCenters()
	for i := 0; i < m.Frames; i++ {
		row := m.melPool(mag[i])
		for j := 0; j < m.NumMels; j++ {
			logMel.Data[i*m.NumMels+j] = math.Log(math.Max(row[j], 1e-5))
			if i == 0 {
				melIF.Data[j] = wrapPi(phase[0][centers[j]])
				continue
			}
			melIF.Data[i*m.NumMels+j] = wrapPi(phase[i][centers[j]] - phase[i-1][centers[j]])
		}
	}
	return logMel, melIF, nil
}

func melToHz(value float64) float64 {
	const breakHz = 700.0
	const highQ = 1127.0
	return breakHz * (math.Exp(value/highQ) - 1.0)
}

func hzToMel(value float64) float64 {
	const breakHz = 700.0
	const highQ = 1127.0
	return highQ * math.Log(1.0+(value/breakHz))
}

// binRange returns the [lo, hi) linear-bin span of mel band i.
func (m *Extractor) binRange(i int) (int, int) {
	half := m.Resolut / 2
	melbin := hzToMel(m.MelFmax) / float64(m.NumMels)
	lo := int(float64(half) * (m.MelFmin + melToHz(melbin*float64(i))) / (m.MelFmax + m.MelFmin))
	hi := int(float64(half) * (m.MelFmin + melToHz(melbin*float64(i+1))) / (m.MelFmax + m.MelFmin))
	if lo < 0 {
		lo = 0
	}
	if lo >= half {
		lo = half - 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	if hi > half {
		hi = half
	}
	return lo, hi
}

// melPool averages one magnitude frame into NumMels bands.
func (m *Extractor) melPool(mag []float64) []float64 {
	out := make([]float64, m.NumMels)
	for i := 0; i < m.NumMels; i++ {
		lo, hi := m.binRange(i)
		var total float64
		for k := lo; k < hi; k++ {
			total += mag[k]
		}
		out[i] = total / float64(hi-lo)
	}
	return out
}

// melCenters returns the representative linear bin of each mel band, used to
// sample phase for the instantaneous-frequency channel.
func (m *Extractor) melCenters() []int {
	centers := make([]int, m.NumMels)
	for i := range centers {
		lo, hi := m.binRange(i)
		centers[i] = (lo + hi - 1) / 2
	}
	return centers
}

// wrapPi wraps an angle difference into (-pi, pi].
func wrapPi(d float64) float64 {
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}
