package bb84

import "github.com/keygenie/bb84sim/bb84/photon"

// Generate prepares count qubits on Alice's side, drawing each bit and then
// its basis from r. Only the Alice fields of the returned records are set. A
// non-positive count yields an empty sequence.
func Generate(count int, r photon.Source) []Qubit {
	if count < 0 {
		count = 0
	}
	qs := make([]Qubit, count)
	for i := range qs {
		qs[i] = Qubit{
			Index:      i,
			AliceBit:   photon.RandomBit(r),
			AliceBasis: photon.RandomBasis(r),
		}
	}
	return qs
}

// Transmit sends each of Alice's qubits over ch, in index order, and returns
// new records with Bob's side filled in. The input is left untouched.
func Transmit(qubits []Qubit, ch photon.Channel) []Qubit {
	out := make([]Qubit, len(qubits))
	for i, q := range qubits {
		d := ch.Transmit(q.AliceBit, q.AliceBasis)
		q.BobBasis = d.Basis
		q.Intercepted = d.Intercepted
		q.Noisy = d.Noisy
		q.BobMeasurement = d.Bit
		out[i] = q
	}
	return out
}
