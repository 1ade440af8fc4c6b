// Package mel turns raw audio into the paired features the generator
// consumes: a log-scaled mel-frequency spectrogram and a mel-scale
// instantaneous-frequency matrix with a fixed frame/band geometry. It also
// carries the dataset-wide normalizer (fitted once, cached as JSON), a
// Griffin-Lim inverse for sanity listening, WAV/FLAC loading, and a PNG dump
// of the paired features.
package mel
