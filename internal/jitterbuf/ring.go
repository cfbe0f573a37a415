package jitterbuf

// ring is a byte-addressed circular buffer with head/tail cursors and an
// explicit occupancy count, in the spirit of the LMAX-disruptor-style
// cursor bookkeeping (write cursor, read cursor, gating count) but
// byte-granular rather than slot-granular: the jitter buffer's ring holds
// raw frame bytes, not fixed-size pointer slots.
//
// ring is framing-agnostic: it never interprets its contents as frames.
// Alignment on overflow is entirely the caller's (framer's) responsibility.
// A ring is always accessed under the owning Buffer's mutex.
type ring struct {
	buf      []byte
	size     int
	writePos int
	readPos  int
	dataSize int

	totalWritten      uint64
	totalRead         uint64
	totalOverrunBytes uint64
	overrunCount      uint64
	malformedCount    uint64
	underrunCount     uint64
}

func newRing(size int) *ring {
	return &ring{buf: make([]byte, size), size: size}
}

// freeSpace returns the number of bytes that may be written without a
// discard.
func (r *ring) freeSpace() int {
	return r.size - r.dataSize
}

// writeRaw appends data to the tail, wrapping as needed. The caller must
// have ensured len(data) <= freeSpace(), by discarding first if necessary;
// writeRaw itself never discards.
func (r *ring) writeRaw(data []byte) {
	n := len(data)
	if n == 0 {
		return
	}
	first := r.size - r.writePos
	if first > n {
		first = n
	}
	copy(r.buf[r.writePos:], data[:first])
	if n > first {
		copy(r.buf, data[first:])
	}
	r.writePos = (r.writePos + n) % r.size
	r.dataSize += n
	r.totalWritten += uint64(n)
}

// writeHeaderAndPayload writes both slices in the same critical section,
// contiguously, without allocating a combined buffer.
func (r *ring) writeHeaderAndPayload(header, payload []byte) {
	r.writeRaw(header)
	r.writeRaw(payload)
}

// copyFromHead copies up to n bytes starting at the read cursor into dst,
// without advancing any cursor.
func (r *ring) copyFromHead(dst []byte, n int) int {
	if n <= 0 {
		return 0
	}
	first := r.size - r.readPos
	if first > n {
		first = n
	}
	copy(dst, r.buf[r.readPos:r.readPos+first])
	if n > first {
		copy(dst[first:], r.buf[:n-first])
	}
	return n
}

// peek copies up to min(n, dataSize, len(dst)) bytes from the head without
// advancing the read cursor.
func (r *ring) peek(dst []byte, n int) int {
	if n > r.dataSize {
		n = r.dataSize
	}
	if n > len(dst) {
		n = len(dst)
	}
	return r.copyFromHead(dst, n)
}

// peekAt peeks n bytes starting offset bytes past the current read cursor,
// without mutating any cursor. The length-prefixed framer uses this to walk
// frame headers read-only when computing frameCount.
func (r *ring) peekAt(offset int, dst []byte, n int) int {
	avail := r.dataSize - offset
	if avail <= 0 {
		return 0
	}
	if n > avail {
		n = avail
	}
	if n > len(dst) {
		n = len(dst)
	}
	if n <= 0 {
		return 0
	}
	start := (r.readPos + offset) % r.size
	first := r.size - start
	if first > n {
		first = n
	}
	copy(dst, r.buf[start:start+first])
	if n > first {
		copy(dst[first:], r.buf[:n-first])
	}
	return n
}

// advance moves the read cursor forward by n bytes. countAsRead controls
// whether the bytes are attributed to totalRead (legitimate consumption,
// including header overhead) or not (overrun/malformed drops, which are
// tracked through their own counters instead).
func (r *ring) advance(n int, countAsRead bool) {
	if n <= 0 {
		return
	}
	r.readPos = (r.readPos + n) % r.size
	r.dataSize -= n
	if countAsRead {
		r.totalRead += uint64(n)
	}
}

// read consumes up to min(n, dataSize, len(dst)) bytes from the head into
// dst, advancing the read cursor and counting them against totalRead.
func (r *ring) read(dst []byte, n int) int {
	if n > r.dataSize {
		n = r.dataSize
	}
	if n > len(dst) {
		n = len(dst)
	}
	m := r.copyFromHead(dst, n)
	r.advance(m, true)
	return m
}

// consume advances the read cursor by n bytes that were already peeked and
// validated (frame header bytes), counting them against totalRead.
func (r *ring) consume(n int) {
	if n > r.dataSize {
		n = r.dataSize
	}
	r.advance(n, true)
}

// dropOverrun advances the read cursor by n bytes to reclaim space for an
// incoming write, without counting them against totalRead; these bytes are
// accounted for via totalOverrunBytes instead, preserving P1 byte
// conservation for the fixed framer.
func (r *ring) dropOverrun(n int) {
	if n > r.dataSize {
		n = r.dataSize
	}
	r.advance(n, false)
	r.totalOverrunBytes += uint64(n)
}

// dropMalformed advances the read cursor by n bytes belonging to a frame
// whose declared length exceeded frame_size, without counting them against
// totalRead.
func (r *ring) dropMalformed(n int) {
	if n > r.dataSize {
		n = r.dataSize
	}
	r.advance(n, false)
}

// reset clears cursors and occupancy. Lifetime counters are untouched:
// they are cumulative across the life of the instance, per spec.md P7.
func (r *ring) reset() {
	r.writePos = 0
	r.readPos = 0
	r.dataSize = 0
}
