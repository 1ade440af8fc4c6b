package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kshedden/gonpy"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/neurlang/sound2image/dataset"
	"github.com/neurlang/sound2image/mel"
)

func newMakedataCommand() *cobra.Command {
	var (
		audioDir string
		frameDir string
		outDir   string
		check    bool
	)
	cmd := &cobra.Command{
		Use:   "makedata",
		Short: "Extract features from paired audio clips and frames into a training dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logrus.New()
			return makedata(log, audioDir, frameDir, outDir, check)
		},
	}
	cmd.Flags().StringVar(&audioDir, "audio-dir", "", "Directory of wav/flac clips")
	cmd.Flags().StringVar(&frameDir, "frame-dir", "", "Directory of frame images named like the clips")
	cmd.Flags().StringVar(&outDir, "out", "", "Dataset output directory")
	cmd.Flags().BoolVar(&check, "check", false, "Also write a Griffin-Lim reconstruction of each clip")
	cmd.MarkFlagRequired("audio-dir")
	cmd.MarkFlagRequired("frame-dir")
	cmd.MarkFlagRequired("out")
	return cmd
}

func makedata(log *logrus.Logger, audioDir, frameDir, outDir string, check bool) error {
	clips, err := listAudio(audioDir)
	if err != nil {
		return err
	}
	if len(clips) == 0 {
		return fmt.Errorf("no audio clips under %s", audioDir)
	}

	for _, modality := range []string{
		dataset.ModalityFrame,
		dataset.ModalityAudio,
		dataset.ModalityLogMel,
		dataset.ModalityMelIF,
	} {
		if err := os.MkdirAll(filepath.Join(outDir, modality), 0o755); err != nil {
			return err
		}
	}

	extractor := mel.NewExtractor()
	for index, clip := range clips {
		buf, err := mel.LoadAudio(clip)
		if err != nil {
			return fmt.Errorf("loading %s: %w", clip, err)
		}
		logMel, melIF, err := extractor.Features(buf)
		if err != nil {
			return fmt.Errorf("extracting %s: %w", clip, err)
		}

		framePath := frameFor(frameDir, clip)
		frame, frameShape, err := loadFrame(framePath)
		if err != nil {
			return fmt.Errorf("loading %s: %w", framePath, err)
		}

		if err := writeNpy(dataset.SamplePath(outDir, dataset.ModalityFrame, index), frame, frameShape); err != nil {
			return err
		}
		if err := writeNpy(dataset.SamplePath(outDir, dataset.ModalityAudio, index), buf, []int{len(buf)}); err != nil {
			return err
		}
		if err := writeNpy(dataset.SamplePath(outDir, dataset.ModalityLogMel, index), logMel.Data, logMel.Shape); err != nil {
			return err
		}
		if err := writeNpy(dataset.SamplePath(outDir, dataset.ModalityMelIF, index), melIF.Data, melIF.Shape); err != nil {
			return err
		}

		if check {
			wave, err := extractor.FromLogMel(logMel)
			if err != nil {
				return err
			}
			name := filepath.Join(outDir, fmt.Sprintf("%d_check.wav", index))
			if err := mel.SaveWav(name, wave, 44100); err != nil {
				return err
			}
		}

		log.WithFields(logrus.Fields{"index": index, "clip": filepath.Base(clip)}).Info("sample written")
	}
	return nil
}

func listAudio(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var clips []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".wav") || strings.HasSuffix(name, ".flac") {
			clips = append(clips, filepath.Join(dir, name))
		}
	}
	sort.Strings(clips)
	return clips, nil
}

// frameFor maps a clip path to the frame image sharing its base name.
func frameFor(frameDir, clip string) string {
	base := strings.TrimSuffix(filepath.Base(clip), filepath.Ext(clip))
	return filepath.Join(frameDir, base+".png")
}

// loadFrame decodes an image into HWC float64 in [0, 1].
func loadFrame(name string) ([]float64, []int, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, nil, err
	}
	bounds := img.Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	data := make([]float64, h*w*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			base := (y*w + x) * 3
			data[base+0] = float64(r) / 65535
			data[base+1] = float64(g) / 65535
			data[base+2] = float64(b) / 65535
		}
	}
	return data, []int{h, w, 3}, nil
}

func writeNpy(name string, data []float64, shape []int) error {
	w, err := gonpy.NewFileWriter(name)
	if err != nil {
		return err
	}
	w.Shape = shape
	return w.WriteFloat64(data)
}
