package train

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/neurlang/sound2image/dataset"
	"github.com/neurlang/sound2image/mel"
	"github.com/neurlang/sound2image/model"
	"github.com/neurlang/sound2image/nn"
	"github.com/neurlang/sound2image/tensor"
)

// Trainer drives the adversarial optimization of one generator/critic pair.
type Trainer struct {
	cfg   Config
	paths Paths
	log   *logrus.Logger

	G *model.Generator
	D *model.Discriminator

	loader *dataset.Loader
	test   *dataset.Cycle

	optG *Adam
	optD *Adam
	rng  *rand.Rand
}

// New wires a trainer over prepared train and test datasets. The experiment
// directory must already exist (Paths.Setup).
func New(cfg Config, paths Paths, trainSet, testSet *dataset.Dataset, log *logrus.Logger) *Trainer {
	if cfg.Workers > 0 {
		tensor.SetWorkers(cfg.Workers)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	g := model.NewGenerator(rng, model.GeneratorConfig())
	d := model.NewDiscriminator(rng, model.DiscriminatorConfig())

	return &Trainer{
		cfg:    cfg,
		paths:  paths,
		log:    log,
		G:      g,
		D:      d,
		loader: dataset.NewLoader(trainSet, cfg.BatchSize, true, cfg.Seed),
		test:   dataset.NewCycle(dataset.NewLoader(testSet, cfg.BatchSize, true, cfg.Seed+1)),
		optG:   NewAdam(g.Parameters(), cfg.LearnRate, cfg.Beta1, cfg.Beta2),
		optD:   NewAdam(d.Parameters(), cfg.LearnRate, cfg.Beta1, cfg.Beta2),
		rng:    rng,
	}
}

// PrepareNormalizer loads the cached feature moments for the experiment, or
// fits them over the training directory on the first run.
func PrepareNormalizer(paths Paths, dataDir string) (*mel.Normalizer, error) {
	ds, err := dataset.New(dataDir, []string{dataset.ModalityLogMel, dataset.ModalityMelIF}, dataset.Transforms{})
	if err != nil {
		return nil, err
	}
	return mel.LoadOrFit(paths.NormalizerFile(), &specIter{ds: ds})
}

// specIter walks a dataset's spectrogram pairs in index order.
type specIter struct {
	ds *dataset.Dataset
	i  int
}

func (s *specIter) NextSpec() (*tensor.Tensor, *tensor.Tensor, error) {
	if s.i >= s.ds.Len() {
		return nil, nil, io.EOF
	}
	sample, err := s.ds.Get(s.i, nil)
	if err != nil {
		return nil, nil, err
	}
	s.i++
	return sample.LogMel, sample.IF, nil
}

// Run trains for the configured number of epochs, resuming from the newest
// consistent checkpoint pair when one exists.
func (t *Trainer) Run() error {
	lastIter, err := Resume(t.paths, t.G, t.D)
	if err != nil {
		return err
	}
	if lastIter >= 0 {
		t.log.WithField("iter", lastIter).Info("resuming from checkpoint")
	}

	for iter := 0; iter < t.cfg.Iters; iter++ {
		if iter <= lastIter {
			continue
		}
		if err := t.epoch(iter); err != nil {
			return err
		}
		if err := SaveNet(t.paths.GeneratorDir(), iter, t.G); err != nil {
			return err
		}
		if err := SaveNet(t.paths.DiscriminatorDir(), iter, t.D); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trainer) epoch(iter int) error {
	epoch := t.loader.Epoch()
	for idx := 0; ; idx++ {
		batch, err := epoch.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		t.G.SetTrain(true)
		t.D.SetTrain(true)

		dLoss, wD := t.stepD(batch)
		gLoss := t.stepG(batch)
		if math.IsNaN(dLoss) || math.IsInf(dLoss, 0) || math.IsNaN(gLoss) || math.IsInf(gLoss, 0) {
			return fmt.Errorf("train: non-finite loss at iter %d step %d (D=%v G=%v)", iter, idx, dLoss, gLoss)
		}

		if t.cfg.PrintEach > 0 && idx%t.cfg.PrintEach == 0 {
			t.log.WithFields(logrus.Fields{
				"iter":   iter,
				"step":   idx,
				"D_loss": fmt.Sprintf("%.4f", dLoss),
				"G_loss": fmt.Sprintf("%.4f", gLoss),
				"W_D":    fmt.Sprintf("%.4f", wD),
			}).Info("train")
		}

		// TestEach of zero still samples once, on the first step.
		if (t.cfg.TestEach > 0 && idx%t.cfg.TestEach == 0) || (t.cfg.TestEach == 0 && idx == 0) {
			if err := t.eval(iter, idx); err != nil {
				return err
			}
		}
	}
}

// stepD runs one critic update and returns the critic loss and the
// Wasserstein distance estimate.
func (t *Trainer) stepD(batch *dataset.Batch) (dLoss, wD float64) {
	b := batch.Frames.Shape[0]
	paramsD := t.D.Parameters()
	paramsG := t.G.Parameters()

	fake, _ := t.G.Forward(batch.Mel, false)

	// The penalty runs first: it zeroes the critic gradients itself before
	// accumulating its own terms.
	interp := Interpolate(t.rng, batch.Frames, fake)
	gp := GradientPenalty(t.D, paramsD, interp, t.cfg.GPLambda)

	scoreReal := t.D.Forward(batch.Frames)
	dReal := scoreReal.Mean()
	t.D.Backward(fill(tensor.New(b, 1, 1, 1), -1/float64(b)))

	scoreFake := t.D.Forward(fake)
	dFake := scoreFake.Mean()
	t.D.Backward(fill(tensor.New(b, 1, 1, 1), 1/float64(b)))

	t.optD.Step(paramsD)
	nn.ZeroGrad(paramsD)
	nn.ZeroGrad(paramsG)

	return dFake - dReal + gp, dReal - dFake
}

// stepG runs one generator update and returns the generator loss.
func (t *Trainer) stepG(batch *dataset.Batch) float64 {
	b := batch.Frames.Shape[0]
	paramsD := t.D.Parameters()
	paramsG := t.G.Parameters()

	fake, _ := t.G.Forward(batch.Mel, false)
	score := t.D.Forward(fake)
	gLoss := -score.Mean()

	imgGrad := t.D.Backward(fill(tensor.New(b, 1, 1, 1), -1/float64(b)))
	t.G.Backward(imgGrad)

	t.optG.Step(paramsG)
	nn.ZeroGrad(paramsG)
	nn.ZeroGrad(paramsD)

	return gLoss
}

// eval renders a fake/real comparison grid from one test batch.
func (t *Trainer) eval(iter, idx int) error {
	t.G.SetTrain(false)
	t.D.SetTrain(false)
	defer t.G.SetTrain(true)
	defer t.D.SetTrain(true)

	batch, err := t.test.Next()
	if err != nil {
		return err
	}
	fake, _ := t.G.Forward(batch.Mel, false)
	name := filepath.Join(t.paths.TestOutputDir(), fmt.Sprintf("%d-%d.png", iter, idx))
	return SaveGrid(name, fake, batch.Frames)
}

func fill(t *tensor.Tensor, v float64) *tensor.Tensor {
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}
