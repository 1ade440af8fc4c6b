package train

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config carries the training hyperparameters.
type Config struct {
	LearnRate float64
	Beta1     float64
	Beta2     float64
	Iters     int // epochs over the training set
	PrintEach int // steps between console reports
	TestEach  int // steps between sample grids, 0 samples once per epoch
	BatchSize int
	GPLambda  float64
	Workers   int // worker goroutines for tensor math, 0 means all CPUs
	Seed      int64
}

// DefaultConfig returns the hyperparameters training normally runs with.
func DefaultConfig() Config {
	return Config{
		LearnRate: 0.0001,
		Beta1:     0,
		Beta2:     0.99,
		Iters:     100,
		PrintEach: 100,
		TestEach:  500,
		BatchSize: 16,
		GPLambda:  10,
		Seed:      1,
	}
}

// Apply overlays string-keyed overrides onto the config. Unknown keys are an
// error rather than silently ignored.
func (c *Config) Apply(overrides map[string]string) error {
	for key, value := range overrides {
		var err error
		switch key {
		case "lr":
			c.LearnRate, err = strconv.ParseFloat(value, 64)
		case "beta1":
			c.Beta1, err = strconv.ParseFloat(value, 64)
		case "beta2":
			c.Beta2, err = strconv.ParseFloat(value, 64)
		case "iters":
			c.Iters, err = strconv.Atoi(value)
		case "print_epoch":
			c.PrintEach, err = strconv.Atoi(value)
		case "test_epoch":
			c.TestEach, err = strconv.Atoi(value)
		case "batch_size":
			c.BatchSize, err = strconv.Atoi(value)
		case "gp_lambda":
			c.GPLambda, err = strconv.ParseFloat(value, 64)
		case "workers":
			c.Workers, err = strconv.Atoi(value)
		case "seed":
			c.Seed, err = strconv.ParseInt(value, 10, 64)
		default:
			return fmt.Errorf("train: unknown config key %q", key)
		}
		if err != nil {
			return fmt.Errorf("train: config key %q: %w", key, err)
		}
	}
	return nil
}

// Paths lays out the experiment directory.
type Paths struct {
	ExpDir string
}

func (p Paths) NormalizerFile() string {
	return filepath.Join(p.ExpDir, "normalizer", "mel_normalizer.json")
}

func (p Paths) GeneratorDir() string {
	return filepath.Join(p.ExpDir, "check_points", "Generator")
}

func (p Paths) DiscriminatorDir() string {
	return filepath.Join(p.ExpDir, "check_points", "Discriminator")
}

func (p Paths) TestOutputDir() string {
	return filepath.Join(p.ExpDir, "test_outputs")
}

// Setup creates every directory the experiment writes into.
func (p Paths) Setup() error {
	for _, dir := range []string{
		filepath.Dir(p.NormalizerFile()),
		p.GeneratorDir(),
		p.DiscriminatorDir(),
		p.TestOutputDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
