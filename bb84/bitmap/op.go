package bitmap

// All binary operators treat the shorter operand as if it were padded with
// trailing zeros, and return a bitmap as long as the longer operand.

// And returns the bitwise AND of two bitmaps.
func And(a, b Dense) Dense {
	return combine(a, b, func(x, y byte) byte { return x & y })
}

// XOr returns the bitwise XOR of two bitmaps.
func XOr(a, b Dense) Dense {
	return combine(a, b, func(x, y byte) byte { return x ^ y })
}

// XNor returns the bitwise XNOR of two bitmaps, i.e. a mask of the positions at
// which a and b agree.
func XNor(a, b Dense) Dense {
	return combine(a, b, func(x, y byte) byte { return ^(x ^ y) })
}

// Not returns the bitwise negation of a bitmap.
func Not(d Dense) Dense {
	return combine(d, Dense{}, func(x, _ byte) byte { return ^x })
}

func combine(a, b Dense, op func(x, y byte) byte) Dense {
	n := a.len
	if b.len > n {
		n = b.len
	}
	r := Dense{
		bits: make([]byte, BytesFor(n)),
		len:  n,
	}
	for j := range r.bits {
		r.bits[j] = op(a.byteAt(j), b.byteAt(j))
	}
	r.maskTail()
	return r
}
