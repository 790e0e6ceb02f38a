// Package reassembler buffers out-of-order, possibly overlapping
// substrings of a byte stream and drains them, in order, into a
// bytestream.Writer as they become contiguous.
package reassembler

import "github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/bytestream"

type interval struct {
	beg, end uint64
	data     []byte
}

// Reassembler reorders substrings arriving at arbitrary stream indices and
// writes the contiguous prefix to the underlying ByteStream as it forms.
type Reassembler struct {
	writer bytestream.Writer

	firstUnassembled uint64
	eofIndex         uint64
	haveEOF          bool

	buffers []interval // sorted by beg, pairwise disjoint and non-adjacent
}

// New creates a Reassembler that drains into w.
func New(w bytestream.Writer) *Reassembler {
	return &Reassembler{writer: w, eofIndex: ^uint64(0)}
}

// Insert buffers data starting at the given absolute stream index. If
// isLastSubstring is true, first_index+len(data) fixes the end-of-stream
// index. Bytes outside the current assembly window (before the first
// unassembled index, or beyond available capacity) are dropped.
func (r *Reassembler) Insert(firstIndex uint64, data []byte, isLastSubstring bool) {
	if r.writer.IsClosed() || firstIndex >= r.eofIndex {
		return
	}
	if isLastSubstring {
		r.eofIndex = firstIndex + uint64(len(data))
		r.haveEOF = true
	}
	windowEnd := r.firstUnassembled + r.writer.AvailableCapacity()
	if firstIndex >= windowEnd {
		return
	}

	begIdx := firstIndex
	if r.firstUnassembled > begIdx {
		begIdx = r.firstUnassembled
	}
	endIdx := firstIndex + uint64(len(data))
	if windowEnd < endIdx {
		endIdx = windowEnd
	}
	if endIdx <= begIdx {
		r.maybeClose()
		return
	}
	clipped := data[begIdx-firstIndex : endIdx-firstIndex]
	r.merge(begIdx, endIdx, clipped)
	r.drain()
	r.maybeClose()
}

// merge inserts [beg,end) with the given bytes into r.buffers, combining it
// with any existing interval it overlaps or touches. Where the new data
// overlaps an existing interval, the new bytes win (see DESIGN.md).
func (r *Reassembler) merge(beg, end uint64, data []byte) {
	lo, hi := beg, end
	startIdx, endIdx := len(r.buffers), len(r.buffers)
	for i, iv := range r.buffers {
		if iv.end >= beg && iv.beg <= end {
			if startIdx == len(r.buffers) || i < startIdx {
				startIdx = i
			}
			endIdx = i + 1
			if iv.beg < lo {
				lo = iv.beg
			}
			if iv.end > hi {
				hi = iv.end
			}
		}
	}
	if startIdx == len(r.buffers) {
		// No overlap: insert data in sorted position.
		pos := 0
		for pos < len(r.buffers) && r.buffers[pos].beg < beg {
			pos++
		}
		merged := append([]interval{}, r.buffers[:pos]...)
		merged = append(merged, interval{beg: beg, end: end, data: append([]byte{}, data...)})
		merged = append(merged, r.buffers[pos:]...)
		r.buffers = merged
		return
	}

	combined := make([]byte, hi-lo)
	for _, iv := range r.buffers[startIdx:endIdx] {
		copy(combined[iv.beg-lo:], iv.data)
	}
	copy(combined[beg-lo:], data)

	merged := append([]interval{}, r.buffers[:startIdx]...)
	merged = append(merged, interval{beg: lo, end: hi, data: combined})
	merged = append(merged, r.buffers[endIdx:]...)
	r.buffers = merged
}

// drain pushes every interval that starts exactly at firstUnassembled,
// repeatedly, since pushing one may expose the next.
func (r *Reassembler) drain() {
	for len(r.buffers) > 0 && r.buffers[0].beg == r.firstUnassembled {
		iv := r.buffers[0]
		r.writer.Push(iv.data)
		r.firstUnassembled = iv.end
		r.buffers = r.buffers[1:]
	}
}

func (r *Reassembler) maybeClose() {
	if r.haveEOF && r.firstUnassembled >= r.eofIndex {
		r.writer.Close()
	}
}

// BytesPending returns the total number of buffered-but-not-yet-assembled
// bytes currently held.
func (r *Reassembler) BytesPending() uint64 {
	var sum uint64
	for _, iv := range r.buffers {
		sum += iv.end - iv.beg
	}
	return sum
}
