package bitmap

import "strings"

// A Dense is a bitmap where every bit is explicitly represented. Bits past
// Size() in the final byte are always zero.
type Dense struct {
	bits []byte
	len  int
}

// Get returns the i-th bit in this bitmap. Bits outside [0, Size()) read as
// zero.
func (d Dense) Get(i int) bool {
	if i < 0 || i >= d.len {
		return false
	}
	return 0 < d.bits[i/byteSize]&(1<<(i%byteSize))
}

// Size returns the number of bits in this bitmap.
func (d Dense) Size() int {
	return d.len
}

// Bits returns the contents of d as a slice of 0/1 values.
func (d Dense) Bits() []int {
	r := make([]int, d.len)
	for i := range r {
		if d.Get(i) {
			r[i] = 1
		}
	}
	return r
}

// String renders d as a string of '0's and '1's, in index order.
func (d Dense) String() string {
	var sb strings.Builder
	sb.Grow(d.len)
	for i := 0; i < d.len; i++ {
		if d.Get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// AppendBit adds a single bit to the end of d.
func (d *Dense) AppendBit(bit bool) {
	i, pos := d.len/byteSize, d.len%byteSize
	d.len += 1
	if pos == 0 {
		d.bits = append(d.bits, 0)
	}
	if bit {
		d.bits[i] |= 1 << pos
	}
}

func (d *Dense) maskTail() {
	off := d.len % byteSize
	if off == 0 || len(d.bits) == 0 {
		return
	}
	d.bits[len(d.bits)-1] &= 0xFF >> (byteSize - off)
}

func (d Dense) byteAt(j int) byte {
	if j >= len(d.bits) {
		return 0
	}
	return d.bits[j]
}
