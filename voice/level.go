// Package voice judges whether a recording contains speech.
package voice

import (
	"encoding/binary"
	"math"
)

// SpeechLevel is the RMS level at or above which a chunk counts as speech.
const SpeechLevel = 0.02

// Level returns the RMS of little-endian 16-bit PCM, normalized to 0..1.
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(n))
}

func IsSpeech(pcm []byte) bool {
	return Level(pcm) >= SpeechLevel
}
