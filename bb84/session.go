package bb84

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/keygenie/bb84sim/bb84/photon"
	"github.com/rs/zerolog"
)

// A Phase is a stage of a Session.
type Phase int

const (
	// Setup holds no qubits; the next Advance generates a fresh run.
	Setup Phase = iota
	// Transmitting reveals one qubit at a time, at the cursor.
	Transmitting
	// Comparing follows the last revealed qubit, while bases are compared.
	Comparing
	// Done exposes the final Report.
	Done
)

var phaseNames = [...]string{"setup", "transmitting", "comparing", "done"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// A Snapshot is a copy of a Session's presentation state.
type Snapshot struct {
	ID         uuid.UUID `json:"id"`
	Phase      Phase     `json:"phase"`
	Cursor     int       `json:"cursor"`
	QubitCount int       `json:"qubitCount"`
	// Current is the qubit at the cursor while Transmitting, nil otherwise.
	Current *Qubit `json:"current"`
	// Revealed holds every qubit shown so far, in index order.
	Revealed []Qubit `json:"revealed"`
}

// A Session steps through one simulation run: Setup → Transmitting →
// Comparing → Done. All qubits are generated up front when the run starts;
// stepping only controls how many have been revealed.
//
// A Session is not safe for concurrent use. Sessions share no state, so
// independent sessions may run in parallel.
type Session struct {
	id     uuid.UUID
	opts   Opts
	log    zerolog.Logger
	phase  Phase
	cursor int
	qubits []Qubit
}

// NewSession validates opts and starts a run, leaving the session
// Transmitting with the first qubit revealed.
func NewSession(opts Opts) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	s := &Session{
		id:   id,
		opts: opts,
		log:  opts.Log.With().Str("component", "session").Str("session_id", id.String()).Logger(),
	}
	s.start()
	return s, nil
}

// RunAll performs a complete run in one call, without exposing intermediate
// phases, returning the report and the qubits it was computed from.
func RunAll(opts Opts) (Report, []Qubit, error) {
	s, err := NewSession(opts)
	if err != nil {
		return Report{}, nil, err
	}
	r := s.Run()
	return r, s.Qubits(), nil
}

// ID returns the session's handle.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// Opts returns the validated options the session was created with.
func (s *Session) Opts() Opts {
	return s.opts
}

// Qubits returns a copy of every qubit generated for the current run, whether
// or not it has been revealed yet. Empty in Setup.
func (s *Session) Qubits() []Qubit {
	return append([]Qubit(nil), s.qubits...)
}

// Snapshot returns the current presentation state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:         s.id,
		Phase:      s.phase,
		Cursor:     s.cursor,
		QubitCount: len(s.qubits),
	}
	switch s.phase {
	case Transmitting:
		cur := s.qubits[s.cursor]
		snap.Current = &cur
		snap.Revealed = append([]Qubit(nil), s.qubits[:s.cursor+1]...)
	case Comparing, Done:
		snap.Revealed = s.Qubits()
	}
	return snap
}

// Advance moves one step forward. From Setup it starts a fresh run; in Done it
// does nothing.
func (s *Session) Advance() Snapshot {
	switch s.phase {
	case Setup:
		s.start()
	case Transmitting:
		if s.cursor < len(s.qubits)-1 {
			s.cursor++
		} else {
			s.cursor = len(s.qubits)
			s.transition(Comparing)
		}
	case Comparing:
		s.transition(Done)
	}
	return s.Snapshot()
}

// Retreat moves one step back. It does nothing at the first qubit, in Setup,
// or in Done. From Comparing it returns to the last qubit.
func (s *Session) Retreat() Snapshot {
	switch s.phase {
	case Transmitting:
		if s.cursor > 0 {
			s.cursor--
		}
	case Comparing:
		s.cursor = len(s.qubits) - 1
		s.transition(Transmitting)
	}
	return s.Snapshot()
}

// Run jumps straight to Done, starting a run first if in Setup, and returns the
// report.
func (s *Session) Run() Report {
	if s.phase == Setup {
		s.start()
	}
	s.cursor = len(s.qubits)
	if s.phase != Done {
		s.transition(Done)
	}
	return Sift(s.qubits)
}

// Reset discards the current run and returns to Setup.
func (s *Session) Reset() Snapshot {
	s.qubits = nil
	s.cursor = 0
	s.transition(Setup)
	return s.Snapshot()
}

// Report returns the report of a finished run. ok is false until the session
// is Done. The report is recomputed from the qubits on every call.
func (s *Session) Report() (r Report, ok bool) {
	if s.phase != Done {
		return Report{}, false
	}
	return Sift(s.qubits), true
}

// Transcript returns the parameters and qubits of the current run. ok is false
// in Setup. The noise and eavesdropping levels are those of the simulated
// channel; a session driven by a custom Opts.Channel records zero for both.
func (s *Session) Transcript() (t Transcript, ok bool) {
	if s.phase == Setup {
		return Transcript{}, false
	}
	t = Transcript{ID: s.id, Qubits: s.Qubits()}
	if sc, sim := s.opts.Channel.(*photon.SimulatedChannel); sim {
		t.Noise, t.Eavesdropping = sc.Noise, sc.Eavesdropping
	}
	return t, true
}

func (s *Session) start() {
	s.qubits = Transmit(Generate(s.opts.Qubits, s.opts.Rand), s.opts.Channel)
	s.cursor = 0
	s.transition(Transmitting)
}

func (s *Session) transition(to Phase) {
	s.log.Debug().
		Stringer("from", s.phase).
		Stringer("to", to).
		Int("cursor", s.cursor).
		Msg("phase transition")
	s.phase = to
}
