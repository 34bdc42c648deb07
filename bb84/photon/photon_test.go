package photon

import (
	"math"
	"math/rand"
	"testing"
)

// A scriptedSource replays fixed draws, so tests can pin every coin flip.
type scriptedSource struct {
	ints   []int
	floats []float64
}

func (s *scriptedSource) Intn(n int) int {
	if len(s.ints) == 0 {
		panic("scriptedSource: out of ints")
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	return v % n
}

func (s *scriptedSource) Float64() float64 {
	if len(s.floats) == 0 {
		panic("scriptedSource: out of floats")
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func TestEncodingTable(t *testing.T) {
	tcs := []struct {
		basis  Basis
		bit    uint8
		label  string
		glyph  string
		symbol string
	}{
		{Rectilinear, 0, "|0⟩", "↑", "+"},
		{Rectilinear, 1, "|1⟩", "→", "+"},
		{Diagonal, 0, "|+⟩", "↗", "×"},
		{Diagonal, 1, "|-⟩", "↖", "×"},
	}
	for _, tc := range tcs {
		t.Run(tc.basis.String()+"/"+tc.label, func(t *testing.T) {
			if got := Label(tc.bit, tc.basis); got != tc.label {
				t.Errorf("Label(%d, %v) == %q, want %q", tc.bit, tc.basis, got, tc.label)
			}
			if got := Polarization(tc.bit, tc.basis); got != tc.glyph {
				t.Errorf("Polarization(%d, %v) == %q, want %q", tc.bit, tc.basis, got, tc.glyph)
			}
			if got := tc.basis.Symbol(); got != tc.symbol {
				t.Errorf("%v.Symbol() == %q, want %q", tc.basis, got, tc.symbol)
			}
		})
	}
}

func TestBasisText(t *testing.T) {
	for _, b := range []Basis{Rectilinear, Diagonal} {
		text, err := b.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", b, err)
		}
		var got Basis
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s): %v", text, err)
		}
		if got != b {
			t.Errorf("text round trip of %v gave %v", b, got)
		}
	}
	if _, err := Basis(7).MarshalText(); err == nil {
		t.Errorf("expected error marshalling unknown basis")
	}
}

func TestBernoulliEdges(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		if Bernoulli(r, 0) {
			t.Fatalf("Bernoulli(0) fired")
		}
		if !Bernoulli(r, 1) {
			t.Fatalf("Bernoulli(1) did not fire")
		}
	}
}

func TestMeasure(t *testing.T) {
	tcs := []struct {
		name  string
		bit   uint8
		basis Basis
		det   Detection
		ints  []int
		eout  uint8
	}{
		{
			name:  "clean match",
			bit:   1,
			basis: Diagonal,
			det:   Detection{Basis: Diagonal},
			eout:  1,
		}, {
			name:  "noisy match flips",
			bit:   1,
			basis: Rectilinear,
			det:   Detection{Basis: Rectilinear, Noisy: true},
			eout:  0,
		}, {
			name:  "intercepted match undisturbed",
			bit:   0,
			basis: Rectilinear,
			det:   Detection{Basis: Rectilinear, Intercepted: true},
			ints:  []int{0},
			eout:  0,
		}, {
			name:  "intercepted match disturbed",
			bit:   0,
			basis: Rectilinear,
			det:   Detection{Basis: Rectilinear, Intercepted: true},
			ints:  []int{1},
			eout:  1,
		}, {
			name:  "disturbed and noisy cancel",
			bit:   0,
			basis: Diagonal,
			det:   Detection{Basis: Diagonal, Intercepted: true, Noisy: true},
			ints:  []int{1},
			eout:  0,
		}, {
			name:  "mismatch ignores noise",
			bit:   1,
			basis: Rectilinear,
			det:   Detection{Basis: Diagonal, Noisy: true, Intercepted: true},
			ints:  []int{1},
			eout:  1,
		}, {
			name:  "mismatch coin",
			bit:   1,
			basis: Diagonal,
			det:   Detection{Basis: Rectilinear},
			ints:  []int{0},
			eout:  0,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			src := &scriptedSource{ints: tc.ints}
			if got := Measure(tc.bit, tc.basis, tc.det, src); got != tc.eout {
				t.Errorf("Measure == %d, want %d", got, tc.eout)
			}
			if len(src.ints) != 0 {
				t.Errorf("Measure left %d draws unused", len(src.ints))
			}
		})
	}
}

func TestSimulatedChannelDrawOrder(t *testing.T) {
	// Bob's basis, then interception, then noise, then the disturbance coin.
	src := &scriptedSource{
		ints:   []int{0, 1},
		floats: []float64{0.1, 0.9},
	}
	sc, err := NewSimulatedChannel(0.5, 0.5, src)
	if err != nil {
		t.Fatalf("NewSimulatedChannel: %v", err)
	}
	d := sc.Transmit(0, Rectilinear)
	want := Detection{Basis: Rectilinear, Intercepted: true, Noisy: false, Bit: 1}
	if d != want {
		t.Errorf("Transmit == %+v, want %+v", d, want)
	}
}

func TestSimulatedChannelValidation(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	tcs := []struct {
		name       string
		noise, eve float64
		src        Source
		eErr       bool
	}{
		{"ok", 0.1, 0.2, r, false},
		{"bounds inclusive", 0, 1, r, false},
		{"negative noise", -0.01, 0, r, true},
		{"eve above one", 0, 1.5, r, true},
		{"percent style noise", 5, 0, r, true},
		{"NaN noise", math.NaN(), 0, r, true},
		{"NaN eve", 0, math.NaN(), r, true},
		{"nil source", 0, 0, nil, true},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSimulatedChannel(tc.noise, tc.eve, tc.src)
			if !tc.eErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tc.eErr && err == nil {
				t.Errorf("expected error: got nil")
			}
		})
	}
}

func TestMismatchedBasisIsUnbiased(t *testing.T) {
	r := rand.New(rand.NewSource(2024))
	sc, err := NewSimulatedChannel(0, 0, r)
	if err != nil {
		t.Fatalf("NewSimulatedChannel: %v", err)
	}
	// counts[aliceBit][bobBit] over mismatched-basis photons.
	var counts [2][2]int
	for i := 0; i < 40000; i++ {
		bit, basis := RandomBit(r), RandomBasis(r)
		d := sc.Transmit(bit, basis)
		if d.Basis == basis {
			continue
		}
		counts[bit][d.Bit]++
	}
	for bit := 0; bit < 2; bit++ {
		n := counts[bit][0] + counts[bit][1]
		if n == 0 {
			t.Fatalf("no mismatched samples for bit %d", bit)
		}
		frac := float64(counts[bit][1]) / float64(n)
		if frac < 0.47 || frac > 0.53 {
			t.Errorf("P(bob=1 | alice=%d, mismatched) == %.3f, want ~0.5", bit, frac)
		}
	}
}
