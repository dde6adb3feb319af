// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts frame chunks between sample rates
// Package resample provides audio sample rate conversion.
//
// Example:
//
//	r, err := resample.New(44100, 48000, 2)
//	out := r.Process(chunk)
package resample
