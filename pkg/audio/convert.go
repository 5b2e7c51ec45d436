package audio

import (
	"encoding/binary"
	"math"
)

// RMS returns the root-mean-square energy of samples. An empty slice has zero
// energy.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Concat joins the samples of frames into one contiguous buffer.
func Concat(frames []AudioFrame) []float32 {
	n := 0
	for _, f := range frames {
		n += len(f.Samples)
	}
	out := make([]float32, 0, n)
	for _, f := range frames {
		out = append(out, f.Samples...)
	}
	return out
}

// ResampledLen returns the number of samples produced when resampling n
// samples from srcRate to dstRate: round(n * dstRate / srcRate).
func ResampledLen(n, srcRate, dstRate int) int {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return n
	}
	return int(math.Round(float64(n) * float64(dstRate) / float64(srcRate)))
}

// Resample converts mono float samples from srcRate to dstRate using linear
// interpolation between neighbouring samples. If srcRate == dstRate, the
// input is returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := ResampledLen(len(samples), srcRate, dstRate)
	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	last := len(samples) - 1

	for i := range dstLen {
		pos := float64(i) * ratio
		i0 := int(pos)
		if i0 > last {
			i0 = last
		}
		i1 := i0 + 1
		if i1 > last {
			i1 = last
		}
		t := pos - float64(i0)
		out[i] = float32(float64(samples[i0])*(1-t) + float64(samples[i1])*t)
	}
	return out
}

// Quantize16 converts float samples to signed 16-bit PCM. Samples are clamped
// to [-1, 1] first; negative values scale by 32768 and positive values by
// 32767 so that both extremes map exactly onto the int16 range.
func Quantize16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		if v < 0 {
			out[i] = int16(v * 32768)
		} else {
			out[i] = int16(v * 32767)
		}
	}
	return out
}

// PCM16Bytes serialises int16 samples as little-endian bytes.
func PCM16Bytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Float32FromLE decodes little-endian IEEE-754 float32 samples as delivered by
// capture devices configured for F32 output. Trailing bytes that do not form
// a whole sample are ignored.
func Float32FromLE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Float32FromPCM16 decodes little-endian signed 16-bit PCM into float samples
// in [-1, 1).
func Float32FromPCM16(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[i*2:]))) / 32768
	}
	return out
}
