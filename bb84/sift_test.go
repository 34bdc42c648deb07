package bb84

import (
	"testing"

	"github.com/keygenie/bb84sim/bb84/photon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rect = photon.Rectilinear
	diag = photon.Diagonal
)

// handBuilt is a 10-qubit run with 6 matching bases, one of which (index 4)
// was measured wrongly.
func handBuilt() []Qubit {
	rows := []struct {
		aBit         uint8
		aBasis, bBas photon.Basis
		bBit         uint8
	}{
		{0, rect, rect, 0},
		{1, rect, diag, 0},
		{1, diag, diag, 1},
		{0, diag, rect, 1},
		{1, rect, rect, 0},
		{0, diag, diag, 0},
		{1, diag, rect, 1},
		{0, rect, diag, 0},
		{1, rect, rect, 1},
		{0, diag, diag, 0},
	}
	qs := make([]Qubit, len(rows))
	for i, row := range rows {
		qs[i] = Qubit{
			Index:          i,
			AliceBit:       row.aBit,
			AliceBasis:     row.aBasis,
			BobBasis:       row.bBas,
			BobMeasurement: row.bBit,
		}
	}
	return qs
}

func TestSiftHandBuilt(t *testing.T) {
	rep := Sift(handBuilt())

	assert.Equal(t, 10, rep.TotalBits)
	assert.Equal(t, 6, rep.MatchingBases)
	assert.Equal(t, 1, rep.ErrorCount)
	assert.InDelta(t, 100.0/6, rep.QBERPercent, 1e-9)
	assert.Equal(t, "16.67", formatPercent(rep.QBERPercent))
	assert.Equal(t, []int{0, 1, 0, 1, 0}, rep.FinalKeyBits)
	assert.Equal(t, "01010", rep.KeyString())
	assert.Equal(t, 5, rep.FinalKeyLength)
	assert.InDelta(t, 50.0, rep.EfficiencyPercent, 1e-9)
	assert.False(t, rep.Secure)
	assert.Equal(t, SecurityThresholdPercent, rep.SecurityThresholdPercent)
}

func TestSiftExcludesErroneousMatches(t *testing.T) {
	// Both records use matching bases. The noisy one was flipped and must not
	// reach the key even though its bases agree; the intercepted one was left
	// undisturbed and is kept.
	qs := []Qubit{
		{Index: 0, AliceBit: 1, AliceBasis: diag, BobBasis: diag, Noisy: true, BobMeasurement: 0},
		{Index: 1, AliceBit: 1, AliceBasis: rect, BobBasis: rect, Intercepted: true, BobMeasurement: 1},
	}
	assert.False(t, qs[0].Kept())
	assert.True(t, qs[0].HasError())
	assert.True(t, qs[1].Kept())

	rep := Sift(qs)
	assert.Equal(t, 2, rep.MatchingBases)
	assert.Equal(t, 1, rep.ErrorCount)
	assert.Equal(t, []int{1}, rep.FinalKeyBits)
	assert.InDelta(t, 50.0, rep.QBERPercent, 1e-9)
}

func TestSiftNoMatches(t *testing.T) {
	tcs := []struct {
		name   string
		qubits []Qubit
	}{
		{"empty", nil},
		{"all mismatched", []Qubit{
			{Index: 0, AliceBit: 1, AliceBasis: rect, BobBasis: diag, BobMeasurement: 0},
			{Index: 1, AliceBit: 0, AliceBasis: diag, BobBasis: rect, BobMeasurement: 1},
		}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			rep := Sift(tc.qubits)
			assert.Equal(t, 0, rep.MatchingBases)
			assert.Equal(t, 0, rep.ErrorCount)
			assert.Equal(t, 0.0, rep.QBERPercent)
			assert.Equal(t, 0, rep.FinalKeyLength)
			assert.Empty(t, rep.FinalKeyBits)
			assert.Equal(t, 0.0, rep.EfficiencyPercent)
			assert.True(t, rep.Secure)
		})
	}
}

func TestIsSecureBoundary(t *testing.T) {
	tcs := []struct {
		qber float64
		want bool
	}{
		{0, true},
		{10.999, true},
		{11.0, false},
		{11.001, false},
		{100, false},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.want, IsSecure(tc.qber), "IsSecure(%v)", tc.qber)
	}
}

func TestSiftLeavesQubitsAlone(t *testing.T) {
	qs := handBuilt()
	before := append([]Qubit(nil), qs...)
	Sift(qs)
	require.Equal(t, before, qs)
}
