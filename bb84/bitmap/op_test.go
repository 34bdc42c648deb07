package bitmap

import (
	"testing"
)

func TestBinaryOperators(t *testing.T) {
	tcs := []struct {
		name string
		a, b Dense
		eout Dense
		op   func(a, b Dense) Dense
	}{
		{
			name: "AND aligned",
			a:    mustDense(t, "10100000"),
			b:    mustDense(t, "01100000"),
			eout: mustDense(t, "00100000"),
			op:   And,
		}, {
			name: "AND short a",
			a:    mustDense(t, "101"),
			b:    mustDense(t, "01111000"),
			eout: mustDense(t, "00100000"),
			op:   And,
		}, {
			name: "AND multibyte",
			a:    mustDense(t, "1010 1010 1100 0110"),
			b:    mustDense(t, "0111 1000 1011 1011"),
			eout: mustDense(t, "0010 1000 1000 0010"),
			op:   And,
		}, {
			name: "XOR aligned",
			a:    mustDense(t, "10100000"),
			b:    mustDense(t, "01100000"),
			eout: mustDense(t, "11000000"),
			op:   XOr,
		}, {
			name: "XOR short a",
			a:    mustDense(t, "101"),
			b:    mustDense(t, "01111000"),
			eout: mustDense(t, "11011000"),
			op:   XOr,
		}, {
			name: "XNOR unaligned",
			a:    mustDense(t, "1010 1010 11"),
			b:    mustDense(t, "1001 1010 01"),
			eout: mustDense(t, "1100 1111 01"),
			op:   XNor,
		}, {
			name: "XNOR short b",
			a:    mustDense(t, "1100"),
			b:    mustDense(t, "10"),
			eout: mustDense(t, "1011"),
			op:   XNor,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := tc.op(tc.a, tc.b)
			checkDense(t, tc.name, out, tc.eout)
		})
	}
}

func TestNot(t *testing.T) {
	tcs := []struct {
		name string
		d    Dense
		eout Dense
	}{
		{"empty", mustDense(t, ""), mustDense(t, "")},
		{"short", mustDense(t, "101"), mustDense(t, "010")},
		{"multibyte", mustDense(t, "1111 0000 10"), mustDense(t, "0000 1111 01")},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := Not(tc.d)
			checkDense(t, "Not("+tc.d.String()+")", out, tc.eout)
		})
	}
}

// Bases are encoded rectilinear=0, diagonal=1.
func TestSiftMasks(t *testing.T) {
	aBases := mustDense(t, "0110 01")
	bBases := mustDense(t, "0011 01")
	aBits := mustDense(t, "1100 10")
	bBits := mustDense(t, "1000 11")

	sift := XNor(aBases, bBases)
	checkDense(t, "sift", sift, mustDense(t, "1010 11"))
	errs := And(sift, XOr(aBits, bBits))
	checkDense(t, "errs", errs, mustDense(t, "0000 01"))
	keep := And(sift, Not(errs))
	checkDense(t, "keep", keep, mustDense(t, "1010 10"))
	checkDense(t, "key", Select(aBits, keep), mustDense(t, "101"))
	if got := CountOnes(sift); got != 4 {
		t.Errorf("CountOnes(sift) == %d, want 4", got)
	}
}
