// Package bb84 simulates the BB84 quantum key distribution protocol for
// teaching purposes: Alice prepares random bits in random bases, a simulated
// channel delivers them to Bob subject to noise and eavesdropping, and the two
// sift their results into a key whose quantum bit error rate (QBER) decides
// whether it can be trusted.
//
// The simulation is synchronous and deterministic given its randomness
// source. Any pacing between revealed steps belongs to the caller.
package bb84

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/keygenie/bb84sim/bb84/photon"
	"github.com/rs/zerolog"
)

// SecurityThresholdPercent is the QBER at or above which a sifted key is
// considered compromised.
const SecurityThresholdPercent = 11.0

// ErrInvalidConfig is returned, wrapped, for nonsensical simulation parameters.
var ErrInvalidConfig = errors.New("invalid simulation config")

// A Qubit records one simulated photon transmission. Qubits are values: once
// generated they are never modified, and sifting only classifies them.
type Qubit struct {
	Index          int
	AliceBit       uint8
	AliceBasis     photon.Basis
	BobBasis       photon.Basis
	Noisy          bool
	Intercepted    bool
	BobMeasurement uint8
}

// Label returns the basis-vector label of Alice's preparation, e.g. |+⟩.
func (q Qubit) Label() string {
	return photon.Label(q.AliceBit, q.AliceBasis)
}

// Polarization returns the arrow glyph of Alice's preparation, e.g. ↗.
func (q Qubit) Polarization() string {
	return photon.Polarization(q.AliceBit, q.AliceBasis)
}

// BasesMatch reports whether Alice and Bob used the same basis.
func (q Qubit) BasesMatch() bool {
	return q.AliceBasis == q.BobBasis
}

// HasError reports whether Bob measured the wrong value despite using Alice's
// basis.
func (q Qubit) HasError() bool {
	return q.BasesMatch() && q.AliceBit != q.BobMeasurement
}

// Kept reports whether q survives sifting into the final key: the bases
// matched and Bob's measurement agrees with Alice's bit.
func (q Qubit) Kept() bool {
	return q.BasesMatch() && q.AliceBit == q.BobMeasurement
}

// check rejects records no channel could have produced.
func (q Qubit) check() error {
	if q.AliceBit > 1 || q.BobMeasurement > 1 {
		return fmt.Errorf("non-binary bit value (alice %d, bob %d)", q.AliceBit, q.BobMeasurement)
	}
	if q.AliceBasis > photon.Diagonal || q.BobBasis > photon.Diagonal {
		return fmt.Errorf("unknown basis (alice %d, bob %d)", q.AliceBasis, q.BobBasis)
	}
	if q.Index < 0 {
		return fmt.Errorf("negative index %d", q.Index)
	}
	return nil
}

type qubitJSON struct {
	Index          int          `json:"index"`
	AliceBit       uint8        `json:"aliceBit"`
	AliceBasis     photon.Basis `json:"aliceBasis"`
	Label          string       `json:"basisVectorLabel"`
	Polarization   string       `json:"polarizationSymbol"`
	BobBasis       photon.Basis `json:"bobBasis"`
	Noisy          bool         `json:"isNoisy"`
	Intercepted    bool         `json:"isIntercepted"`
	BobMeasurement uint8        `json:"bobMeasurement"`
	BasesMatch     bool         `json:"basesMatch"`
	Kept           bool         `json:"isKept"`
}

// MarshalJSON includes the derived fields alongside the recorded ones.
func (q Qubit) MarshalJSON() ([]byte, error) {
	return json.Marshal(qubitJSON{
		Index:          q.Index,
		AliceBit:       q.AliceBit,
		AliceBasis:     q.AliceBasis,
		Label:          q.Label(),
		Polarization:   q.Polarization(),
		BobBasis:       q.BobBasis,
		Noisy:          q.Noisy,
		Intercepted:    q.Intercepted,
		BobMeasurement: q.BobMeasurement,
		BasesMatch:     q.BasesMatch(),
		Kept:           q.Kept(),
	})
}

// UnmarshalJSON reads the recorded fields and ignores the derived ones. Bits
// other than 0 and 1 are rejected.
func (q *Qubit) UnmarshalJSON(data []byte) error {
	var v qubitJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r := Qubit{
		Index:          v.Index,
		AliceBit:       v.AliceBit,
		AliceBasis:     v.AliceBasis,
		BobBasis:       v.BobBasis,
		Noisy:          v.Noisy,
		Intercepted:    v.Intercepted,
		BobMeasurement: v.BobMeasurement,
	}
	if err := r.check(); err != nil {
		return err
	}
	*q = r
	return nil
}

// Opts packages together the parameters of a simulation run.
type Opts struct {
	// Qubits is the number of photons Alice sends. Must be positive.
	Qubits int

	// Noise and Eavesdropping are per-photon probabilities in [0, 1] of a
	// channel-noise flip and of an interception by Eve, respectively.
	Noise         float64
	Eavesdropping float64

	// Rand provides a source of randomness. Defaults to a clock-seeded
	// generator; tests should supply a seeded one.
	Rand photon.Source

	// Channel overrides the simulated channel built from Noise, Eavesdropping
	// and Rand. Optional.
	Channel photon.Channel

	// Log receives debug output about state transitions. Defaults to a no-op
	// logger.
	Log *zerolog.Logger
}

func (o Opts) validate() error {
	if o.Qubits <= 0 {
		return fmt.Errorf("%w: qubit count must be positive, got %d", ErrInvalidConfig, o.Qubits)
	}
	if !(o.Noise >= 0 && o.Noise <= 1) {
		return fmt.Errorf("%w: noise level %v outside [0, 1]", ErrInvalidConfig, o.Noise)
	}
	if !(o.Eavesdropping >= 0 && o.Eavesdropping <= 1) {
		return fmt.Errorf("%w: eavesdropping level %v outside [0, 1]", ErrInvalidConfig, o.Eavesdropping)
	}
	return nil
}

// withDefaults fills in Rand, Channel and Log, and must only be called on
// validated options.
func (o Opts) withDefaults() (Opts, error) {
	if o.Rand == nil {
		o.Rand = photon.NewSource(0)
	}
	if o.Channel == nil {
		ch, err := photon.NewSimulatedChannel(o.Noise, o.Eavesdropping, o.Rand)
		if err != nil {
			return Opts{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		o.Channel = ch
	}
	if o.Log == nil {
		nop := zerolog.Nop()
		o.Log = &nop
	}
	return o, nil
}

// FromPercent converts a percentage in [0, 100], as presented to users, into a
// probability in [0, 1]. Values outside that range are rejected rather than
// clamped.
func FromPercent(p float64) (float64, error) {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return 0, fmt.Errorf("%w: percentage %v outside [0, 100]", ErrInvalidConfig, p)
	}
	return p / 100, nil
}
