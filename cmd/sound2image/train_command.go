package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/neurlang/sound2image/dataset"
	"github.com/neurlang/sound2image/train"
)

func newTrainCommand() *cobra.Command {
	var (
		dataDir     string
		testDataDir string
		expDir      string
		overrides   []string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the generator and critic on a prepared dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := train.DefaultConfig()
			kv, err := parseOverrides(overrides)
			if err != nil {
				return err
			}
			if err := cfg.Apply(kv); err != nil {
				return err
			}

			paths := train.Paths{ExpDir: expDir}
			if err := paths.Setup(); err != nil {
				return err
			}

			log := logrus.New()
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

			normalizer, err := train.PrepareNormalizer(paths, dataDir)
			if err != nil {
				return err
			}
			transforms := dataset.Transforms{FrameFlip: true, Mel: normalizer}

			trainSet, err := dataset.New(dataDir, dataset.DefaultModalities, transforms)
			if err != nil {
				return err
			}
			testSet, err := dataset.New(testDataDir, dataset.DefaultModalities, transforms)
			if err != nil {
				return err
			}

			return train.New(cfg, paths, trainSet, testSet, log).Run()
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Training dataset directory")
	cmd.Flags().StringVar(&testDataDir, "test-data-dir", "", "Held-out dataset directory for sample grids")
	cmd.Flags().StringVar(&expDir, "exp-dir", "./experiments", "Experiment output directory")
	cmd.Flags().StringArrayVar(&overrides, "set", nil, "Hyperparameter override, key=value (repeatable)")
	cmd.MarkFlagRequired("data-dir")
	cmd.MarkFlagRequired("test-data-dir")
	return cmd
}

func parseOverrides(pairs []string) (map[string]string, error) {
	kv := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("bad override %q, want key=value", pair)
		}
		kv[key] = value
	}
	return kv, nil
}
