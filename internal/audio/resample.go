// Package audio handles the raw 16-bit little-endian mono PCM exchanged with the
// telephony websocket and the speech model.
package audio

import (
	"encoding/binary"
	"math"
)

// Resampler converts PCM16LE mono between sample rates with linear interpolation.
// It carries the last sample and fractional position across calls, so a stream can be
// converted chunk by chunk without clicks at chunk boundaries.
type Resampler struct {
	from, to int
	step     float64

	pos     float64
	prev    int16
	hasPrev bool
	odd     []byte
}

func NewResampler(from, to int) *Resampler {
	return &Resampler{from: from, to: to, step: float64(from) / float64(to)}
}

// Write converts one chunk and returns the resampled bytes.
// A trailing odd byte is held until the next chunk.
func (r *Resampler) Write(pcm []byte) []byte {
	if len(r.odd) > 0 {
		pcm = append(append([]byte{}, r.odd...), pcm...)
		r.odd = nil
	}
	if len(pcm)%2 == 1 {
		r.odd = []byte{pcm[len(pcm)-1]}
		pcm = pcm[:len(pcm)-1]
	}
	if len(pcm) == 0 {
		return nil
	}
	if r.from == r.to {
		return append([]byte{}, pcm...)
	}

	in := decode(pcm)
	if r.hasPrev {
		in = append([]int16{r.prev}, in...)
	}

	out := make([]int16, 0, int(float64(len(in))/r.step)+1)
	for {
		i := int(r.pos)
		if i+1 >= len(in) {
			break
		}
		frac := r.pos - float64(i)
		v := float64(in[i])*(1-frac) + float64(in[i+1])*frac
		out = append(out, clamp(v))
		r.pos += r.step
	}

	r.pos -= float64(len(in) - 1)
	r.prev = in[len(in)-1]
	r.hasPrev = true
	return encode(out)
}

// Resample converts a complete buffer in one call.
func Resample(pcm []byte, from, to int) []byte {
	return NewResampler(from, to).Write(pcm)
}

// Frames splits pcm into size-byte frames. The last frame may be shorter.
func Frames(pcm []byte, size int) [][]byte {
	if size <= 0 || len(pcm) <= size {
		if len(pcm) == 0 {
			return nil
		}
		return [][]byte{pcm}
	}
	out := make([][]byte, 0, (len(pcm)+size-1)/size)
	for len(pcm) > 0 {
		n := size
		if len(pcm) < n {
			n = len(pcm)
		}
		out = append(out, pcm[:n])
		pcm = pcm[n:]
	}
	return out
}

func decode(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

func encode(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func clamp(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
