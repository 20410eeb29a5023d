package signal

import "math/rand"

// GenerateRSSI draws an observation around the noise-free expected
// value: rssi = cast_to_i16(expected + Normal(0, noise)).
func (m ModelConfig) GenerateRSSI(rng *rand.Rand, expected float64) int16 {
	eps := rng.NormFloat64() * float64(m.Noise)
	v := expected + eps
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}
