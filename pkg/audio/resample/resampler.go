// ABOUTME: Streaming linear resampler for 16-bit PCM
// ABOUTME: Carries the last input frame across chunks so chunking does not change output
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates.
// Positions are tracked as exact fractions of the output rate, so feeding a
// stream in any chunking produces the same samples as feeding it at once.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int

	// position is the next output position in input frames, scaled by outputRate
	position int64
	last     []int16 // one sample per channel
	primed   bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	if channels < 1 {
		channels = 1
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		last:       make([]int16, channels),
	}
}

// Resample converts interleaved input samples at inputRate and returns the
// interleaved samples at outputRate that the input makes available. The
// final input frame is held back to interpolate against the next chunk.
func (r *Resampler) Resample(input []int16) []int16 {
	if len(input) < r.channels || r.inputRate <= 0 || r.outputRate <= 0 {
		return nil
	}

	frames := input
	if r.primed {
		frames = make([]int16, 0, len(input)+r.channels)
		frames = append(frames, r.last...)
		frames = append(frames, input...)
	}
	numFrames := int64(len(frames) / r.channels)

	out := make([]int16, 0, r.OutputSamplesNeeded(len(input))+r.channels)
	outRate := int64(r.outputRate)

	for {
		idx := r.position / outRate
		if idx >= numFrames-1 {
			break
		}
		frac := r.position % outRate

		for ch := 0; ch < r.channels; ch++ {
			s1 := int64(frames[idx*int64(r.channels)+int64(ch)])
			s2 := int64(frames[(idx+1)*int64(r.channels)+int64(ch)])
			v := float64(s1*(outRate-frac)+s2*frac) / float64(outRate)
			out = append(out, int16(math.Round(v)))
		}

		r.position += int64(r.inputRate)
	}

	// Rebase so the held-back frame is index zero of the next chunk
	r.position -= (numFrames - 1) * outRate
	copy(r.last, frames[(numFrames-1)*int64(r.channels):numFrames*int64(r.channels)])
	r.primed = true

	return out
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.last {
		r.last[i] = 0
	}
}

// OutputSamplesNeeded estimates how many output samples input samples produce
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	if r.inputRate <= 0 {
		return 0
	}
	inputFrames := inputSamples / r.channels
	outputFrames := int(int64(inputFrames) * int64(r.outputRate) / int64(r.inputRate))
	return outputFrames * r.channels
}

// InputSamplesNeeded estimates how many input samples yield outputSamples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	if r.outputRate <= 0 {
		return 0
	}
	outputFrames := outputSamples / r.channels
	inputFrames := int(int64(outputFrames) * int64(r.inputRate) / int64(r.outputRate))
	return inputFrames * r.channels
}
