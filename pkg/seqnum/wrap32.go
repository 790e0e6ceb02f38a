// Package seqnum implements the 32-bit wrapping sequence-number arithmetic
// used by the TCP sender and receiver: Wrap32 values and the absolute
// 64-bit stream indices they are mapped to and from.
package seqnum

// Wrap32 is a 32-bit sequence number, wrapping modulo 2^32.
type Wrap32 uint32

// Wrap maps an absolute 64-bit index n onto the sequence-number space whose
// zero point is zeroPoint. Any overflow past 2^32 wraps automatically
// because the addition happens in uint32.
func Wrap(n uint64, zeroPoint Wrap32) Wrap32 {
	return zeroPoint + Wrap32(uint32(n))
}

// Unwrap returns the absolute 64-bit index that w represents, choosing
// among the infinitely many candidates (w, w+2^32, w+2*2^32, ...) the one
// closest to checkpoint.
func (w Wrap32) Unwrap(zeroPoint Wrap32, checkpoint uint64) uint64 {
	offset := int32(w - Wrap(checkpoint, zeroPoint))
	absseq := int64(checkpoint) + int64(offset)
	if absseq < 0 {
		absseq += 1 << 32
	}
	return uint64(absseq)
}

// Less reports whether w comes before o in the wrapping sequence space,
// i.e. w < o modulo 2^32, following the same signed-subtraction trick as
// soypat-seqs' Value.LessThan.
func (w Wrap32) Less(o Wrap32) bool {
	return int32(w-o) < 0
}

// InWindow reports whether w lies in [first, first+size) modulo 2^32.
func InWindow(w, first Wrap32, size uint32) bool {
	return w-first < Wrap32(size)
}
