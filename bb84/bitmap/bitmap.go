// Package bitmap provides utilities for operating on densely-packed arrays of
// booleans.
package bitmap

import "math/bits"

// TODO: store uint64 words instead of bytes so the ops and CountOnes work a
// word at a time.
const byteSize = 8

// Select selects a subset of bits from data, according to which bits are set in
// mask.
func Select(data, mask Dense) Dense {
	var d Dense
	for i := 0; i < data.Size(); i++ {
		if !mask.Get(i) {
			continue
		}
		d.AppendBit(data.Get(i))
	}
	return d
}

// FromBits builds a Dense from a slice of 0/1 values. Any non-zero value is
// treated as a set bit.
func FromBits(vals []int) Dense {
	d := Dense{bits: make([]byte, 0, BytesFor(len(vals)))}
	for _, v := range vals {
		d.AppendBit(v != 0)
	}
	return d
}

// CountOnes returns the total number of bits set in d.
func CountOnes(d Dense) int {
	var sum int
	for _, b := range d.bits {
		sum += bits.OnesCount8(b)
	}
	return sum
}

// BytesFor returns the number of bytes necessary to hold the provided number of
// bits.
func BytesFor(bits int) int {
	return (bits + byteSize - 1) / byteSize
}
