// Package train runs the adversarial optimization that fits the generator
// and critic to a paired audio/frame dataset, with periodic console logging,
// sample grids, and per-epoch checkpoints that training can resume from.
package train
