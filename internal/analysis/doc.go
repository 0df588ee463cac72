// Package analysis post-processes stored trajectories.
//
// Spectrum and DominantFrequency estimate the frequency content of a
// sampled coordinate with an FFT, which tells apart periodic, period-n
// and irregular impacting motion. Impacts extracts the contact events of
// a gap signal and ImpactMap pairs consecutive impact velocities, the
// usual return map used to study impact oscillators.
package analysis
