package bb84

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	"github.com/keygenie/bb84sim/bb84/photon"
	"google.golang.org/protobuf/encoding/protowire"
)

// A Transcript is the portable record of one run: its parameters and every
// qubit. Reports are not stored; they are recomputed from the qubits.
type Transcript struct {
	ID            uuid.UUID
	Noise         float64
	Eavesdropping float64
	Qubits        []Qubit
}

// Report sifts the transcript's qubits.
func (t Transcript) Report() Report {
	return Sift(t.Qubits)
}

// Transcripts are written as a sequence of frames, each framed as
// length | message, where length is a little-endian int32 and message is
// protobuf wire format. The first frame carries the header; every following
// frame carries one qubit.
const (
	frameHeader protowire.Number = 1
	frameQubit  protowire.Number = 2

	headerID            protowire.Number = 1
	headerQubits        protowire.Number = 2
	headerNoise         protowire.Number = 3
	headerEavesdropping protowire.Number = 4

	qubitIndex          protowire.Number = 1
	qubitAliceBit       protowire.Number = 2
	qubitAliceBasis     protowire.Number = 3
	qubitBobBasis       protowire.Number = 4
	qubitNoisy          protowire.Number = 5
	qubitIntercepted    protowire.Number = 6
	qubitBobMeasurement protowire.Number = 7
)

// maxFrame bounds the size of a single frame we are willing to read.
const maxFrame = 1 << 16

// WriteTranscript serializes t to w.
func WriteTranscript(w io.Writer, t Transcript) error {
	var h []byte
	h = protowire.AppendTag(h, headerID, protowire.BytesType)
	h = protowire.AppendBytes(h, t.ID[:])
	h = protowire.AppendTag(h, headerQubits, protowire.VarintType)
	h = protowire.AppendVarint(h, uint64(len(t.Qubits)))
	h = protowire.AppendTag(h, headerNoise, protowire.Fixed64Type)
	h = protowire.AppendFixed64(h, math.Float64bits(t.Noise))
	h = protowire.AppendTag(h, headerEavesdropping, protowire.Fixed64Type)
	h = protowire.AppendFixed64(h, math.Float64bits(t.Eavesdropping))
	if err := writeFrame(w, frameHeader, h); err != nil {
		return fmt.Errorf("writing transcript header: %w", err)
	}
	for _, q := range t.Qubits {
		if err := writeFrame(w, frameQubit, marshalQubit(q)); err != nil {
			return fmt.Errorf("writing qubit %d: %w", q.Index, err)
		}
	}
	return nil
}

// ReadTranscript parses a transcript written by WriteTranscript.
func ReadTranscript(r io.Reader) (Transcript, error) {
	var (
		t      Transcript
		want   = -1
		header bool
	)
	for {
		num, msg, err := readFrame(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Transcript{}, err
		}
		switch num {
		case frameHeader:
			if header {
				return Transcript{}, errors.New("duplicate transcript header")
			}
			header = true
			if want, err = unmarshalHeader(msg, &t); err != nil {
				return Transcript{}, fmt.Errorf("reading transcript header: %w", err)
			}
		case frameQubit:
			if !header {
				return Transcript{}, errors.New("qubit frame before transcript header")
			}
			q, err := unmarshalQubit(msg)
			if err != nil {
				return Transcript{}, fmt.Errorf("reading qubit %d: %w", len(t.Qubits), err)
			}
			t.Qubits = append(t.Qubits, q)
		default:
			return Transcript{}, fmt.Errorf("unknown frame type %d", num)
		}
	}
	if !header {
		return Transcript{}, errors.New("missing transcript header")
	}
	if want != len(t.Qubits) {
		return Transcript{}, fmt.Errorf("transcript truncated: header announces %d qubits, found %d", want, len(t.Qubits))
	}
	return t, nil
}

func writeFrame(w io.Writer, num protowire.Number, msg []byte) error {
	var b []byte
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, msg)
	if err := binary.Write(w, binary.LittleEndian, int32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readFrame returns io.EOF only if r is exhausted exactly at a frame boundary.
func readFrame(r io.Reader) (protowire.Number, []byte, error) {
	var mLen int32
	if err := binary.Read(r, binary.LittleEndian, &mLen); err != nil {
		return 0, nil, err
	}
	if mLen < 0 || mLen > maxFrame {
		return 0, nil, fmt.Errorf("invalid frame length %d", mLen)
	}
	b := make([]byte, mLen)
	if _, err := io.ReadFull(r, b); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return 0, nil, protowire.ParseError(n)
	}
	if typ != protowire.BytesType {
		return 0, nil, fmt.Errorf("frame %d has wire type %d", num, typ)
	}
	msg, m := protowire.ConsumeBytes(b[n:])
	if m < 0 {
		return 0, nil, protowire.ParseError(m)
	}
	return num, msg, nil
}

func marshalQubit(q Qubit) []byte {
	var b []byte
	b = appendVarintField(b, qubitIndex, uint64(q.Index))
	b = appendVarintField(b, qubitAliceBit, uint64(q.AliceBit))
	b = appendVarintField(b, qubitAliceBasis, uint64(q.AliceBasis))
	b = appendVarintField(b, qubitBobBasis, uint64(q.BobBasis))
	b = appendVarintField(b, qubitNoisy, protowire.EncodeBool(q.Noisy))
	b = appendVarintField(b, qubitIntercepted, protowire.EncodeBool(q.Intercepted))
	b = appendVarintField(b, qubitBobMeasurement, uint64(q.BobMeasurement))
	return b
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func unmarshalQubit(b []byte) (Qubit, error) {
	var q Qubit
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.VarintType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return n, nil
		}
		switch num {
		case qubitIndex:
			q.Index = int(v)
		case qubitAliceBit:
			q.AliceBit = uint8(v)
		case qubitAliceBasis:
			q.AliceBasis = photon.Basis(v)
		case qubitBobBasis:
			q.BobBasis = photon.Basis(v)
		case qubitNoisy:
			q.Noisy = protowire.DecodeBool(v)
		case qubitIntercepted:
			q.Intercepted = protowire.DecodeBool(v)
		case qubitBobMeasurement:
			q.BobMeasurement = uint8(v)
		}
		return n, nil
	})
	if err != nil {
		return Qubit{}, err
	}
	if err := q.check(); err != nil {
		return Qubit{}, err
	}
	return q, nil
}

func unmarshalHeader(b []byte, t *Transcript) (qubits int, err error) {
	err = consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == headerID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return 0, err
			}
			t.ID = id
			return n, nil
		case num == headerQubits && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			qubits = int(v)
			return n, nil
		case num == headerNoise && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			t.Noise = math.Float64frombits(v)
			return n, nil
		case num == headerEavesdropping && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			t.Eavesdropping = math.Float64frombits(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return qubits, err
}

// consumeFields walks the fields of a wire-format message, handing each value
// to f. f returns the number of bytes it consumed, or a negative protowire
// error code.
func consumeFields(b []byte, f func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := f(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}
