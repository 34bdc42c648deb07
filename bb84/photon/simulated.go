package photon

import "fmt"

// NewSimulatedChannel creates a Channel with the given probabilities of a noise
// flip and of an interception per photon. Both must lie in [0, 1].
func NewSimulatedChannel(noise, eavesdropping float64, r Source) (*SimulatedChannel, error) {
	if !(noise >= 0 && noise <= 1) {
		return nil, fmt.Errorf("noise probability %v outside [0, 1]", noise)
	}
	if !(eavesdropping >= 0 && eavesdropping <= 1) {
		return nil, fmt.Errorf("eavesdropping probability %v outside [0, 1]", eavesdropping)
	}
	if r == nil {
		return nil, fmt.Errorf("must provide a randomness source")
	}
	return &SimulatedChannel{
		Noise:         noise,
		Eavesdropping: eavesdropping,
		rand:          r,
	}, nil
}

// A SimulatedChannel models a noisy link with an intermittent eavesdropper.
//
// For every photon it draws, in order: the receiver's basis, whether Eve
// intercepted it, and whether noise struck it. A receiver measuring in the
// wrong basis sees a fair coin flip regardless of anything else. Otherwise the
// bit survives unless Eve's measurement disturbed it (probability 1/2) and is
// then inverted outright if noise struck.
type SimulatedChannel struct {
	Noise         float64
	Eavesdropping float64

	rand Source
}

// Transmit implements the Channel interface.
func (sc *SimulatedChannel) Transmit(bit uint8, basis Basis) Detection {
	d := Detection{
		Basis:       RandomBasis(sc.rand),
		Intercepted: Bernoulli(sc.rand, sc.Eavesdropping),
		Noisy:       Bernoulli(sc.rand, sc.Noise),
	}
	d.Bit = Measure(bit, basis, d, sc.rand)
	return d
}

// Measure derives the receiver's outcome for bit, sent in basis, given the
// receiver's basis and disturbance flags in d. r is consulted only where the
// outcome is genuinely random.
func Measure(bit uint8, basis Basis, d Detection, r Source) uint8 {
	if d.Basis != basis {
		return RandomBit(r)
	}
	m := bit & 1
	if d.Intercepted && RandomBit(r) == 1 {
		m ^= 1
	}
	if d.Noisy {
		m ^= 1
	}
	return m
}
