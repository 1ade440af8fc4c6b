// Package nn implements the building-block layers the generator and
// discriminator stacks are assembled from: strided 2D convolutions with
// optional spectral normalization, batch normalization, self-attention,
// squeeze-excite gating, nearest-neighbour upsampling and the residual /
// inverted-residual / upsample blocks built on top of them.
//
// Every layer follows the same contract: Forward caches whatever the matching
// Backward needs, Backward accumulates parameter gradients and returns the
// gradient with respect to the layer input. Layers are not safe for
// concurrent use; one control loop drives them.
package nn
