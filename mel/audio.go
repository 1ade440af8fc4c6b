package mel

import (
	"fmt"
	"os"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/mewkiz/flac"
)

// LoadAudio reads a wav or flac file into a mono float64 waveform in [-1, 1].
// Stereo input keeps the left channel only.
func LoadAudio(name string) ([]float64, error) {
	switch {
	case strings.HasSuffix(name, ".flac"):
		return LoadFlac(name)
	default:
		return LoadWav(name)
	}
}

func LoadWav(name string) ([]float64, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stream, _, err := wav.Decode(file)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	// beep's wav decoder divides 16-bit samples by 65535 while its encoder
	// multiplies by 32767, leaving decoded audio at half amplitude. Rescale
	// so full-scale int16 maps back to 1.0.
	const gain = 65535.0 / 32767.0
	var out []float64
	samples := make([][2]float64, 512)
	for {
		n, ok := stream.Stream(samples)
		for i := 0; i < n; i++ {
			out = append(out, samples[i][0]*gain)
		}
		if !ok {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrFileNotLoaded
	}
	return out, nil
}

func LoadFlac(name string) ([]float64, error) {
	stream, err := flac.ParseFile(name)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	scale := float64(int64(1) << (stream.Info.BitsPerSample - 1))
	var out []float64
	for {
		frame, err := stream.ParseNext()
		if err != nil {
			break
		}
		sub := frame.Subframes[0]
		for _, s := range sub.Samples {
			out = append(out, float64(s)/scale)
		}
	}
	if len(out) == 0 {
		return nil, ErrFileNotLoaded
	}
	return out, nil
}

// SaveWav writes a mono waveform as a 16-bit wav file.
func SaveWav(name string, buf []float64, sampleRate int) error {
	file, err := os.Create(name)
	if err != nil {
		return err
	}

	pos := 0
	streamer := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= len(buf) {
			return 0, false
		}
		n := 0
		for i := range samples {
			if pos >= len(buf) {
				break
			}
			samples[i][0] = buf[pos]
			samples[i][1] = buf[pos]
			pos++
			n++
		}
		return n, true
	})
	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 2,
		Precision:   2,
	}
	if err := wav.Encode(file, streamer, format); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("mel: closing %s: %w", name, err)
	}
	return nil
}
