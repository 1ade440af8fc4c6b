package train

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kshedden/gonpy"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/neurlang/sound2image/dataset"
	"github.com/neurlang/sound2image/model"
)

func writeSample(t *testing.T, dir string, index int, fill float64) {
	t.Helper()
	write := func(modality string, data []float64, shape []int) {
		path := dataset.SamplePath(dir, modality, index)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		w, err := gonpy.NewFileWriter(path)
		require.NoError(t, err)
		w.Shape = shape
		require.NoError(t, w.WriteFloat64(data))
	}

	frame := make([]float64, model.FrameSize*model.FrameSize*model.FrameChans)
	for i := range frame {
		frame[i] = fill
	}
	feat := make([]float64, model.MelFrames*model.MelBins)
	for i := range feat {
		feat[i] = fill - 0.5
	}
	write(dataset.ModalityFrame, frame, []int{model.FrameSize, model.FrameSize, model.FrameChans})
	write(dataset.ModalityLogMel, feat, []int{model.MelFrames, model.MelBins})
	write(dataset.ModalityMelIF, feat, []int{model.MelFrames, model.MelBins})
}

func TestPrepareNormalizerCachesStats(t *testing.T) {
	dataDir := t.TempDir()
	writeSample(t, dataDir, 0, 0.25)
	writeSample(t, dataDir, 1, 0.75)

	paths := Paths{ExpDir: t.TempDir()}
	require.NoError(t, paths.Setup())

	z1, err := PrepareNormalizer(paths, dataDir)
	require.NoError(t, err)
	require.FileExists(t, paths.NormalizerFile())

	z2, err := PrepareNormalizer(paths, dataDir)
	require.NoError(t, err)
	require.Equal(t, z1.Stats, z2.Stats)
}

func TestSpecIterEndsWithEOF(t *testing.T) {
	dataDir := t.TempDir()
	writeSample(t, dataDir, 0, 0.5)

	ds, err := dataset.New(dataDir, []string{dataset.ModalityLogMel, dataset.ModalityMelIF}, dataset.Transforms{})
	require.NoError(t, err)

	it := &specIter{ds: ds}
	spec, iff, err := it.NextSpec()
	require.NoError(t, err)
	require.Equal(t, []int{model.MelFrames, model.MelBins}, spec.Shape)
	require.Equal(t, []int{model.MelFrames, model.MelBins}, iff.Shape)

	_, _, err = it.NextSpec()
	require.Equal(t, io.EOF, err)
}

func TestTrainerRunsAndCheckpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("full training step")
	}

	dataDir := t.TempDir()
	writeSample(t, dataDir, 0, 0.25)
	writeSample(t, dataDir, 1, 0.75)

	paths := Paths{ExpDir: t.TempDir()}
	require.NoError(t, paths.Setup())

	cfg := DefaultConfig()
	cfg.Iters = 1
	cfg.BatchSize = 2
	cfg.TestEach = 0
	cfg.PrintEach = 1

	log := logrus.New()
	log.SetOutput(io.Discard)

	trainSet, err := dataset.New(dataDir, dataset.DefaultModalities, dataset.Transforms{})
	require.NoError(t, err)
	testSet, err := dataset.New(dataDir, dataset.DefaultModalities, dataset.Transforms{})
	require.NoError(t, err)

	tr := New(cfg, paths, trainSet, testSet, log)
	require.NoError(t, tr.Run())

	require.FileExists(t, filepath.Join(paths.GeneratorDir(), "0"))
	require.FileExists(t, filepath.Join(paths.DiscriminatorDir(), "0"))
	require.FileExists(t, filepath.Join(paths.TestOutputDir(), "0-0.png"))

	// a second Run sees the checkpoints and has nothing left to do
	tr2 := New(cfg, paths, trainSet, testSet, log)
	require.NoError(t, tr2.Run())
}
