// ABOUTME: Growable FIFO of float samples
// ABOUTME: Backs the capture accumulation buffer and per-speaker jitter buffers
package audio

// Ring is a FIFO of float samples that grows on write and drains from the front.
// It is not safe for concurrent use; owners guard it with their own mutex.
type Ring struct {
	buffer  []float32
	readPos int
}

// NewRing creates a ring with the given initial capacity (in samples)
func NewRing(capacity int) *Ring {
	return &Ring{
		buffer: make([]float32, 0, capacity),
	}
}

// Write appends samples to the back of the ring
func (r *Ring) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	r.compact(len(samples))
	r.buffer = append(r.buffer, samples...)
}

// Peek returns up to n of the oldest samples without consuming them.
// The returned slice aliases the ring and is valid until the next Write.
func (r *Ring) Peek(n int) []float32 {
	if n > r.Len() {
		n = r.Len()
	}
	return r.buffer[r.readPos : r.readPos+n]
}

// Read copies the oldest samples into dst and consumes them
func (r *Ring) Read(dst []float32) int {
	n := copy(dst, r.buffer[r.readPos:])
	r.Discard(n)
	return n
}

// Discard drops up to n of the oldest samples
func (r *Ring) Discard(n int) {
	if n >= r.Len() {
		r.Reset()
		return
	}
	r.readPos += n
}

// Len returns the number of buffered samples
func (r *Ring) Len() int {
	return len(r.buffer) - r.readPos
}

// Reset drops every buffered sample and keeps the allocation
func (r *Ring) Reset() {
	r.buffer = r.buffer[:0]
	r.readPos = 0
}

// compact moves unread samples to the front when the consumed prefix is
// large enough that appending would otherwise reallocate
func (r *Ring) compact(incoming int) {
	if r.readPos == 0 || len(r.buffer)+incoming <= cap(r.buffer) {
		return
	}
	n := copy(r.buffer, r.buffer[r.readPos:])
	r.buffer = r.buffer[:n]
	r.readPos = 0
}
