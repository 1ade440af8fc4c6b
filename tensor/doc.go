// Package tensor provides the dense NCHW tensor type used by the network
// layers: a flat float64 value buffer with an optional gradient buffer of the
// same shape, plus the batch-parallel helper the compute-heavy layers use to
// spread per-sample work over worker goroutines.
package tensor
