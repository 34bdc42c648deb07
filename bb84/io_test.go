package bb84

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/keygenie/bb84sim/bb84/photon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptRoundTrip(t *testing.T) {
	s := newTestSession(t, 24, 0.15, 0.25, 77)
	want, ok := s.Transcript()
	require.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, WriteTranscript(&buf, want))
	got, err := ReadTranscript(&buf)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, s.Run(), got.Report())
}

func TestTranscriptEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTranscript(&buf, Transcript{}))
	got, err := ReadTranscript(&buf)
	require.NoError(t, err)
	assert.Empty(t, got.Qubits)
	assert.True(t, got.Report().Secure)
}

func TestTranscriptMalformed(t *testing.T) {
	s := newTestSession(t, 4, 0, 0, 5)
	tr, _ := s.Transcript()
	var full bytes.Buffer
	require.NoError(t, WriteTranscript(&full, tr))

	var header bytes.Buffer
	require.NoError(t, WriteTranscript(&header, Transcript{}))
	headerLen := header.Len()

	tcs := []struct {
		name string
		data []byte
	}{
		{"empty stream", nil},
		{"cut mid frame", full.Bytes()[:full.Len()-3]},
		{"missing qubits", full.Bytes()[:headerLen]},
		{"qubit before header", full.Bytes()[headerLen:]},
		{"absurd length", func() []byte {
			var b bytes.Buffer
			binary.Write(&b, binary.LittleEndian, int32(-5))
			return b.Bytes()
		}()},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadTranscript(bytes.NewReader(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestTranscriptRejectsBadRecords(t *testing.T) {
	tcs := []struct {
		name string
		q    Qubit
	}{
		{"alice bit two", Qubit{AliceBit: 2}},
		{"bob bit three", Qubit{BobMeasurement: 3}},
		{"unknown basis", Qubit{BobBasis: 5}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteTranscript(&buf, Transcript{Qubits: []Qubit{tc.q}}))
			_, err := ReadTranscript(&buf)
			assert.Error(t, err)
		})
	}
}

// perfectChannel delivers every photon intact, measured in the sender's basis.
type perfectChannel struct{}

func (perfectChannel) Transmit(bit uint8, basis photon.Basis) photon.Detection {
	return photon.Detection{Basis: basis, Bit: bit}
}

func TestTranscriptChannelLevels(t *testing.T) {
	sim := newTestSession(t, 6, 0.15, 0.25, 3)
	tr, ok := sim.Transcript()
	require.True(t, ok)
	assert.Equal(t, 0.15, tr.Noise)
	assert.Equal(t, 0.25, tr.Eavesdropping)

	custom, err := NewSession(Opts{
		Qubits:        6,
		Noise:         0.4,
		Eavesdropping: 0.6,
		Rand:          rand.New(rand.NewSource(3)),
		Channel:       perfectChannel{},
	})
	require.NoError(t, err)
	tr, ok = custom.Transcript()
	require.True(t, ok)
	assert.Zero(t, tr.Noise)
	assert.Zero(t, tr.Eavesdropping)
	rep := tr.Report()
	assert.Equal(t, 6, rep.MatchingBases)
	assert.Equal(t, 6, rep.FinalKeyLength)
}
