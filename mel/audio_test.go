package mel

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWavRoundTrip(t *testing.T) {
	name := filepath.Join(t.TempDir(), "tone.wav")
	tone := sine(4410, 440, 44100)

	require.NoError(t, SaveWav(name, tone, 44100))

	got, err := LoadWav(name)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(got), len(tone))

	// 16-bit quantization and clamping bound the error
	for i := range tone {
		require.InDelta(t, tone[i], got[i], 1.0/math.Exp2(14))
	}

	// a uniform gain error would shift the peak well outside the
	// quantization bound
	var peak float64
	for _, v := range got[:len(tone)] {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	require.InDelta(t, 1.0, peak, 0.01)
}

func TestLoadWavMissingFile(t *testing.T) {
	_, err := LoadWav(filepath.Join(t.TempDir(), "nope.wav"))
	require.Error(t, err)
}

func TestLoadAudioDispatch(t *testing.T) {
	name := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, SaveWav(name, sine(441, 440, 44100), 44100))
	got, err := LoadAudio(name)
	require.NoError(t, err)
	require.NotEmpty(t, got)
}
