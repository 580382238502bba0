// ABOUTME: Fixed-size framing of captured audio
// ABOUTME: Regroups arbitrary device callbacks into equal blocks
package capture

// Framer accumulates samples and emits blocks of exactly Size samples
type Framer struct {
	size int
	buf  []float32
}

// NewFramer creates a framer for the given block size
func NewFramer(size int) *Framer {
	if size <= 0 {
		size = 1
	}
	return &Framer{
		size: size,
		buf:  make([]float32, 0, size*2),
	}
}

// Write appends samples and calls emit once per completed block.
// Blocks passed to emit are fresh slices owned by the callee.
func (f *Framer) Write(samples []float32, emit func([]float32)) {
	f.buf = append(f.buf, samples...)

	for len(f.buf) >= f.size {
		block := make([]float32, f.size)
		copy(block, f.buf[:f.size])
		f.buf = f.buf[f.size:]
		emit(block)
	}
}

// Buffered returns the number of samples waiting for a full block
func (f *Framer) Buffered() int {
	return len(f.buf)
}
