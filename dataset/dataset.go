package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/kshedden/gonpy"

	"github.com/neurlang/sound2image/tensor"
)

// Modality names match the dataset subdirectory layout.
const (
	ModalityFrame  = "frame"
	ModalityAudio  = "audio"
	ModalityLogMel = "log_mel_spec"
	ModalityMelIF  = "mel_if"
)

// DefaultModalities is the set the trainer loads.
var DefaultModalities = []string{ModalityFrame, ModalityLogMel, ModalityMelIF}

// ErrMissingSample marks an absent or unreadable sample file. Dataset
// integrity is assumed; the error aborts the batch fetch rather than being
// recovered.
var ErrMissingSample = errors.New("dataset: missing sample file")

// SamplePath returns the file path of one modality of one sample.
func SamplePath(dataDir, modality string, index int) string {
	return filepath.Join(dataDir, modality, fmt.Sprintf("%d_%s.npy", index, modality))
}

// Sample is one time-aligned tuple of loaded modalities. Fields for
// modalities that were not requested stay nil. Frame is CHW in [-1, 1] after
// the default transform; LogMel and IF are (frames, bins).
type Sample struct {
	Frame  *tensor.Tensor
	Audio  *tensor.Tensor
	LogMel *tensor.Tensor
	IF     *tensor.Tensor
}

// MelTransform normalizes a (log-mel, instantaneous-frequency) pair in
// place-free fashion; the mel normalizer implements it.
type MelTransform interface {
	Apply(spec, iff *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor)
}

// Transforms configures per-sample preprocessing.
type Transforms struct {
	// FrameFlip enables the random vertical flip augmentation.
	FrameFlip bool
	// Mel, when set, normalizes the spectrogram pair.
	Mel MelTransform
}

// Dataset indexes one data directory. Length is the file count of the first
// requested modality; all modalities are assumed consistent.
type Dataset struct {
	dir        string
	modalities []string
	transforms Transforms
	length     int
}

// New opens a dataset directory for the given modalities.
func New(dir string, modalities []string, transforms Transforms) (*Dataset, error) {
	if len(modalities) == 0 {
		return nil, errors.New("dataset: no modalities requested")
	}
	matches, err := filepath.Glob(filepath.Join(dir, modalities[0], "*.npy"))
	if err != nil {
		return nil, fmt.Errorf("dataset: scanning %s: %w", dir, err)
	}
	return &Dataset{
		dir:        dir,
		modalities: append([]string(nil), modalities...),
		transforms: transforms,
		length:     len(matches),
	}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return d.length }

// Dir returns the dataset root directory.
func (d *Dataset) Dir() string { return d.dir }

// Get loads all requested modalities of one sample and applies the
// transforms. rng drives the flip augmentation and may be nil to disable it.
func (d *Dataset) Get(index int, rng *rand.Rand) (*Sample, error) {
	s := &Sample{}
	for _, m := range d.modalities {
		data, shape, err := readNpy(SamplePath(d.dir, m, index))
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", ErrMissingSample, m, index, err)
		}
		switch m {
		case ModalityFrame:
			frame, err := frameTensor(data, shape)
			if err != nil {
				return nil, fmt.Errorf("dataset: frame %d: %w", index, err)
			}
			s.Frame = frame
		case ModalityAudio:
			s.Audio = tensor.NewFrom(data, len(data))
		case ModalityLogMel:
			if len(shape) != 2 {
				return nil, fmt.Errorf("dataset: log_mel_spec %d: want 2 axes, got %v", index, shape)
			}
			s.LogMel = tensor.NewFrom(data, shape...)
		case ModalityMelIF:
			if len(shape) != 2 {
				return nil, fmt.Errorf("dataset: mel_if %d: want 2 axes, got %v", index, shape)
			}
			s.IF = tensor.NewFrom(data, shape...)
		default:
			return nil, fmt.Errorf("dataset: unknown modality %q", m)
		}
	}
	if s.Frame != nil {
		if d.transforms.FrameFlip && rng != nil && rng.Float64() < 0.5 {
			flipVertical(s.Frame)
		}
	}
	if d.transforms.Mel != nil && s.LogMel != nil && s.IF != nil {
		s.LogMel, s.IF = d.transforms.Mel.Apply(s.LogMel, s.IF)
	}
	return s, nil
}

// readNpy loads a numpy array as float64 regardless of its stored precision.
func readNpy(path string) ([]float64, []int, error) {
	rdr, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, nil, err
	}
	switch rdr.Dtype {
	case "f8":
		data, err := rdr.GetFloat64()
		if err != nil {
			return nil, nil, err
		}
		return data, rdr.Shape, nil
	case "f4":
		f32, err := rdr.GetFloat32()
		if err != nil {
			return nil, nil, err
		}
		data := make([]float64, len(f32))
		for i, v := range f32 {
			data[i] = float64(v)
		}
		return data, rdr.Shape, nil
	}
	return nil, nil, fmt.Errorf("unsupported npy dtype %q", rdr.Dtype)
}

// frameTensor converts a stored HWC [0,1] frame into a CHW tensor scaled to
// [-1, 1].
func frameTensor(data []float64, shape []int) (*tensor.Tensor, error) {
	if len(shape) != 3 || shape[2] != 3 {
		return nil, fmt.Errorf("want (H, W, 3), got %v", shape)
	}
	h, w := shape[0], shape[1]
	t := tensor.New(3, h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				t.Data[c*h*w+y*w+x] = data[(y*w+x)*3+c]*2 - 1
			}
		}
	}
	return t, nil
}

// flipVertical mirrors a CHW tensor along its height axis.
func flipVertical(t *tensor.Tensor) {
	c, h, w := t.Shape[0], t.Shape[1], t.Shape[2]
	for ci := 0; ci < c; ci++ {
		plane := t.Data[ci*h*w : (ci+1)*h*w]
		for y := 0; y < h/2; y++ {
			top := plane[y*w : y*w+w]
			bot := plane[(h-1-y)*w : (h-1-y)*w+w]
			for x := range top {
				top[x], bot[x] = bot[x], top[x]
			}
		}
	}
}
