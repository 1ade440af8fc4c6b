package mel

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/r9y9/gossp/stft"

	"github.com/neurlang/sound2image/tensor"
)

// FromLogMel reconstructs a waveform from a log-mel spectrogram of shape
// (Frames, NumMels). Phase is recovered by Griffin-Lim, so the result is an
// audible approximation only, useful for checking that extracted features
// still carry the signal.
func (m *Extractor) FromLogMel(logMel *tensor.Tensor) ([]float64, error) {
	frames, mels := logMel.Shape[0], logMel.Shape[1]
	half := m.Resolut / 2

	// Undo the log compression and spread every mel band back over its
	// linear bins.
	linear := make([][]float64, frames)
	for i := 0; i < frames; i++ {
		linear[i] = make([]float64, half)
		for j := 0; j < mels; j++ {
			mag := math.Exp(logMel.Data[i*mels+j])
			lo, hi := m.binRange(j)
			for k := lo; k < hi; k++ {
				linear[i][k] = mag
			}
		}
	}

	// Smooth the staircase the band expansion leaves behind.
	for r := 0; r < int(math.Sqrt((m.MelFmax-m.MelFmin)/float64(m.NumMels))); r++ {
		for i := 0; i < frames; i++ {
			for k := 1; k+1 < half; k++ {
				linear[i][k] = (linear[i][k-1] + linear[i][k] + linear[i][k+1]) / 3
			}
		}
	}

	spectrogram := make([][]complex128, frames)
	for i := 0; i < frames; i++ {
		spectrogram[i] = make([]complex128, m.Resolut)
		for k := 0; k < half; k++ {
			spectrogram[i][k] = complex(linear[i][k], 0)
			spectrogram[i][m.Resolut-k-1] = complex(linear[i][k], 0)
		}
	}

	s := stft.New(m.Window, m.Resolut)
	return istft(s, spectrogram, m.GriffinLimIterations), nil
}

// istft overlap-adds the spectrogram back to a waveform and refines the
// phase with Griffin-Lim iterations.
func istft(s *stft.STFT, spectrogram [][]complex128, numIterations int) []float64 {
	frameLen := len(spectrogram[0])
	numFrames := len(spectrogram)

	reconstruct := func() []float64 {
		signal := make([]float64, frameLen+(numFrames-1)*s.FrameShift)
		windowSum := make([]float64, len(signal))
		for i := 0; i < numFrames; i++ {
			buf := fft.IFFT(spectrogram[i])
			index := 0
			for t := i * s.FrameShift; t < i*s.FrameShift+frameLen; t++ {
				signal[t] += real(buf[index]) * s.Window[index]
				windowSum[t] += s.Window[index]
				index++
			}
		}
		for i := range signal {
			if windowSum[i] != 0 {
				signal[i] /= windowSum[i]
			}
		}
		return signal
	}

	signal := reconstruct()

	for iter := 0; iter < numIterations; iter++ {
		for i := 0; i < numFrames; i++ {
			frame := make([]float64, frameLen)
			for j := 0; j < frameLen; j++ {
				if i*s.FrameShift+j < len(signal) {
					frame[j] = signal[i*s.FrameShift+j] * s.Window[j]
				}
			}
			stftFrame := fft.FFTReal(frame)
			for j := range stftFrame {
				magnitude := cmplx.Abs(spectrogram[i][j])
				phase := cmplx.Phase(stftFrame[j])
				spectrogram[i][j] = cmplx.Rect(magnitude, phase)
			}
		}
		signal = reconstruct()
	}

	return signal
}
