// Package model defines the sound2image networks: the audio-to-latent
// Encoder, the latent-to-image Decoder, the Generator composing the two, and
// the spectral-normalized Discriminator used as a Wasserstein critic.
package model
