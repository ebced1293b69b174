// ABOUTME: Audio types package documentation
// ABOUTME: Shared audio formats and sample representation
// Package audio defines the shared audio types for Sendspin streaming.
//
// Samples are carried as int32 values in 24-bit range: the low 24 bits hold
// the sample, the high 8 bits are sign-extended. Conversion helpers move
// between 16-bit, packed 24-bit and full-scale 32-bit representations.
package audio
