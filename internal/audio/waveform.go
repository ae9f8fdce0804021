package audio

import "encoding/binary"

// Peaks reduces little-endian 16-bit mono PCM to n peak magnitudes over
// equally spaced time buckets, normalized to [0,1]. Short or empty input
// still yields exactly n buckets, zero-filled past the audio's end.
func Peaks(pcm []byte, n int) []float64 {
	peaks := make([]float64, n)
	samples := len(pcm) / 2
	if samples == 0 {
		return peaks
	}
	bucketSize := samples / n
	if bucketSize == 0 {
		bucketSize = 1
	}
	for i := range n {
		start := i * bucketSize
		if start >= samples {
			break
		}
		end := start + bucketSize
		if i == n-1 || end > samples {
			end = samples
		}
		var peak int32
		for s := start; s < end; s++ {
			v := int32(int16(binary.LittleEndian.Uint16(pcm[s*2:])))
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
		peaks[i] = float64(peak) / 32768
	}
	return peaks
}
