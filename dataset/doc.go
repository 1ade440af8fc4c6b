// Package dataset reads the paired on-disk training data: one subdirectory
// per modality (frame, audio, log_mel_spec, mel_if), each holding
// {index}_{modality}.npy files for contiguous integer indexes. A Loader
// assembles shuffled mini-batches with a bounded prefetch worker pool, and a
// Cycle wraps a Loader into an endless restartable batch sequence for the
// held-out evaluation stream.
package dataset
