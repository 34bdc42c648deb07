// Package photon provides utilities for handling photon-encoded qubits.
package photon

import (
	"fmt"
	"math/rand"
	"time"
)

// A Basis is one of the two polarization orientations a qubit may be prepared
// or measured in.
type Basis uint8

const (
	Rectilinear Basis = 0
	Diagonal    Basis = 1
)

// String returns the lower-case name of b.
func (b Basis) String() string {
	switch b {
	case Rectilinear:
		return "rectilinear"
	case Diagonal:
		return "diagonal"
	}
	return fmt.Sprintf("Basis(%d)", uint8(b))
}

// Symbol returns the glyph commonly used to denote b: '+' for rectilinear and
// '×' for diagonal.
func (b Basis) Symbol() string {
	if b == Diagonal {
		return "×"
	}
	return "+"
}

// Vectors returns the pair of basis-vector labels spanning b, ordered by the
// bit value they encode.
func (b Basis) Vectors() [2]string {
	if b == Diagonal {
		return [2]string{"|+⟩", "|-⟩"}
	}
	return [2]string{"|0⟩", "|1⟩"}
}

// MarshalText implements encoding.TextMarshaler.
func (b Basis) MarshalText() ([]byte, error) {
	switch b {
	case Rectilinear, Diagonal:
		return []byte(b.String()), nil
	}
	return nil, fmt.Errorf("unknown basis %d", uint8(b))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Basis) UnmarshalText(text []byte) error {
	switch string(text) {
	case "rectilinear", "+":
		*b = Rectilinear
	case "diagonal", "×", "x":
		*b = Diagonal
	default:
		return fmt.Errorf("unknown basis %q", text)
	}
	return nil
}

// Label returns the basis-vector label of a bit prepared in basis b.
func Label(bit uint8, b Basis) string {
	return b.Vectors()[bit&1]
}

// Polarization returns the arrow glyph for the polarization of a photon
// encoding bit in basis b.
func Polarization(bit uint8, b Basis) string {
	switch {
	case b == Rectilinear && bit == 0:
		return "↑"
	case b == Rectilinear:
		return "→"
	case bit == 0:
		return "↗"
	default:
		return "↖"
	}
}

// A Source supplies the randomness used to prepare and measure photons.
// *math/rand.Rand satisfies Source; tests should seed one for determinism.
type Source interface {
	Intn(n int) int
	Float64() float64
}

// NewSource returns a pseudo-random Source. A zero seed is replaced with the
// current time.
func NewSource(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// RandomBit draws a uniformly random bit from r.
func RandomBit(r Source) uint8 {
	return uint8(r.Intn(2))
}

// RandomBasis draws a uniformly random basis from r.
func RandomBasis(r Source) Basis {
	return Basis(r.Intn(2))
}

// Bernoulli returns true with probability p. p <= 0 never fires and p >= 1
// always does.
func Bernoulli(r Source, p float64) bool {
	return r.Float64() < p
}

// A Detection records what the receiving side observed for one photon.
type Detection struct {
	Basis       Basis
	Intercepted bool
	Noisy       bool
	Bit         uint8
}

// A Channel carries photons from the sender to the receiver, applying whatever
// disturbances it models, and measures each one in a receiver-chosen basis.
type Channel interface {
	// Transmit sends bit, prepared in basis, and returns the receiver's
	// detection.
	Transmit(bit uint8, basis Basis) Detection
}
