package main

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/x448/float16"

	"github.com/neurlang/sound2image/mel"
	"github.com/neurlang/sound2image/model"
	"github.com/neurlang/sound2image/tensor"
	"github.com/neurlang/sound2image/train"
)

func newGenerateCommand() *cobra.Command {
	var (
		expDir     string
		iter       int
		outDir     string
		saveLatent string
		fromLatent string
	)
	cmd := &cobra.Command{
		Use:   "generate [audio file]",
		Short: "Render frames from audio with a trained generator",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			opts := generateOpts{
				expDir:     expDir,
				iter:       iter,
				outDir:     outDir,
				saveLatent: saveLatent,
				fromLatent: fromLatent,
			}
			if len(args) > 0 {
				opts.audio = args[0]
			}
			return generate(log, opts)
		},
	}
	cmd.Flags().StringVar(&expDir, "exp-dir", "./experiments", "Experiment directory holding checkpoints and the normalizer")
	cmd.Flags().IntVar(&iter, "iter", -1, "Checkpoint iteration, -1 for the latest")
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory PNG frames are written to")
	cmd.Flags().StringVar(&saveLatent, "save-latent", "", "Also save the encoder latents to this file")
	cmd.Flags().StringVar(&fromLatent, "from-latent", "", "Decode latents from this file instead of encoding audio")
	return cmd
}

type generateOpts struct {
	audio      string
	expDir     string
	iter       int
	outDir     string
	saveLatent string
	fromLatent string
}

func generate(log *logrus.Logger, opts generateOpts) error {
	paths := train.Paths{ExpDir: opts.expDir}

	iter := opts.iter
	if iter < 0 {
		iter = train.LatestIter(paths.GeneratorDir())
	}
	if iter < 0 {
		return fmt.Errorf("no generator checkpoints under %s", paths.GeneratorDir())
	}

	rng := rand.New(rand.NewSource(1))
	gen := model.NewGenerator(rng, model.GeneratorConfig())
	if err := train.LoadNet(paths.GeneratorDir(), iter, gen); err != nil {
		return err
	}
	gen.SetTrain(false)

	var latents []*tensor.Tensor
	if opts.fromLatent != "" {
		var err error
		latents, err = readLatents(opts.fromLatent)
		if err != nil {
			return err
		}
	} else {
		if opts.audio == "" {
			return fmt.Errorf("an audio file is required unless --from-latent is set")
		}
		inputs, err := audioInputs(paths, opts.audio)
		if err != nil {
			return err
		}
		for _, input := range inputs {
			_, latent := gen.Forward(input, false)
			latents = append(latents, latent.Clone())
		}
		if opts.saveLatent != "" {
			if err := writeLatents(opts.saveLatent, latents); err != nil {
				return err
			}
		}
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return err
	}
	for i, latent := range latents {
		image, _ := gen.Forward(latent, true)
		name := filepath.Join(opts.outDir, fmt.Sprintf("out-%03d.png", i))
		if err := train.SaveFrame(name, image, 0); err != nil {
			return err
		}
		log.WithField("frame", name).Info("frame written")
	}
	return nil
}

// audioInputs slices the clip into consecutive analysis windows and returns
// one normalized (1, 2, frames, bins) network input per window.
func audioInputs(paths train.Paths, name string) ([]*tensor.Tensor, error) {
	normalizer, err := mel.LoadOrFit(paths.NormalizerFile(), nil)
	if err != nil {
		return nil, fmt.Errorf("loading normalizer: %w", err)
	}

	buf, err := mel.LoadAudio(name)
	if err != nil {
		return nil, err
	}

	extractor := mel.NewExtractor()
	window := (extractor.Frames - 1) * extractor.Window
	var inputs []*tensor.Tensor
	for off := 0; off == 0 || off+window <= len(buf); off += window {
		logMel, melIF, err := extractor.Features(buf[off:])
		if err != nil {
			return nil, err
		}
		logMel, melIF = normalizer.Apply(logMel, melIF)

		input := tensor.New(1, 2, extractor.Frames, extractor.NumMels)
		copy(input.Data, logMel.Data)
		copy(input.Data[logMel.Numel():], melIF.Data)
		inputs = append(inputs, input)
	}
	return inputs, nil
}

// Latent files are a tiny binary format: a count header followed by the
// half-precision latent vectors back to back.
func writeLatents(name string, latents []*tensor.Tensor) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	header := []uint32{uint32(len(latents)), model.LatentDim}
	if err := binary.Write(f, binary.LittleEndian, header); err != nil {
		f.Close()
		return err
	}
	for _, latent := range latents {
		bits := make([]uint16, len(latent.Data))
		for i, v := range latent.Data {
			bits[i] = float16.Fromfloat32(float32(v)).Bits()
		}
		if err := binary.Write(f, binary.LittleEndian, bits); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func readLatents(name string) ([]*tensor.Tensor, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]uint32, 2)
	if err := binary.Read(f, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	if header[1] != model.LatentDim {
		return nil, fmt.Errorf("latent file has dimension %d, want %d", header[1], model.LatentDim)
	}
	latents := make([]*tensor.Tensor, 0, header[0])
	for n := uint32(0); n < header[0]; n++ {
		bits := make([]uint16, header[1])
		if err := binary.Read(f, binary.LittleEndian, bits); err != nil {
			return nil, err
		}
		latent := tensor.New(1, int(header[1]))
		for i, b := range bits {
			latent.Data[i] = float64(float16.Frombits(b).Float32())
		}
		latents = append(latents, latent)
	}
	return latents, nil
}
