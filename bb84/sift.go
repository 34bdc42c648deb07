package bb84

import "github.com/keygenie/bb84sim/bb84/bitmap"

// A Report summarizes the outcome of sifting a complete run.
type Report struct {
	TotalBits                int     `json:"totalBits"`
	MatchingBases            int     `json:"matchingBases"`
	ErrorCount               int     `json:"errorCount"`
	QBERPercent              float64 `json:"qberPercent"`
	FinalKeyBits             []int   `json:"finalKeyBits"`
	FinalKeyLength           int     `json:"finalKeyLength"`
	EfficiencyPercent        float64 `json:"efficiencyPercent"`
	Secure                   bool    `json:"isSecure"`
	SecurityThresholdPercent float64 `json:"securityThresholdPercent"`
}

// KeyString renders the final key as a string of '0's and '1's.
func (r Report) KeyString() string {
	return bitmap.FromBits(r.FinalKeyBits).String()
}

// IsSecure reports whether a QBER, in percent, is strictly below
// SecurityThresholdPercent.
func IsSecure(qberPercent float64) bool {
	return qberPercent < SecurityThresholdPercent
}

// Sift discards the qubits whose bases disagree, counts errors among the rest,
// and keeps the error-free matches as the final key. With no matching bases
// the QBER is 0 and the (empty) key is deemed secure.
func Sift(qubits []Qubit) Report {
	var aBits, bBits, aBases, bBases bitmap.Dense
	for _, q := range qubits {
		aBits.AppendBit(q.AliceBit == 1)
		bBits.AppendBit(q.BobMeasurement == 1)
		aBases.AppendBit(q.AliceBasis == 1)
		bBases.AppendBit(q.BobBasis == 1)
	}
	siftMask := bitmap.XNor(aBases, bBases)
	errMask := bitmap.And(siftMask, bitmap.XOr(aBits, bBits))
	keepMask := bitmap.And(siftMask, bitmap.Not(errMask))
	key := bitmap.Select(aBits, keepMask)

	r := Report{
		TotalBits:                len(qubits),
		MatchingBases:            bitmap.CountOnes(siftMask),
		ErrorCount:               bitmap.CountOnes(errMask),
		FinalKeyBits:             key.Bits(),
		FinalKeyLength:           key.Size(),
		SecurityThresholdPercent: SecurityThresholdPercent,
	}
	if r.MatchingBases > 0 {
		r.QBERPercent = float64(r.ErrorCount) / float64(r.MatchingBases) * 100
	}
	if r.TotalBits > 0 {
		r.EfficiencyPercent = float64(r.FinalKeyLength) / float64(r.TotalBits) * 100
	}
	r.Secure = IsSecure(r.QBERPercent)
	return r
}
