// Package capture defines the immutable records produced by a class scan and
// the scan session that owns them.
//
// A capture is bound to exactly one Session. The session moves through
// Open -> Building -> Sealed (or Failed); once it leaves the building state
// the structural contract methods of its captures fail with an illegal-state
// error.
package capture

import (
	"sync"
	"sync/atomic"

	"github.com/vk/hookwire/internal/fault"
)

// State is the state of a scan session.
type State int32

const (
	// Open sessions accept captures.
	Open State = iota
	// Building sessions are running the aggregator's Build.
	Building
	// Sealed sessions have produced their result.
	Sealed
	// Failed sessions aborted; no result is exposed.
	Failed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Building:
		return "building"
	case Sealed:
		return "sealed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Policy decides what happens to a capture no handler accepts.
type Policy uint8

const (
	// Lenient drops unmatched captures. Suited to broad, exploratory scans.
	Lenient Policy = iota
	// Strict reports unmatched captures as unsupported.
	Strict
)

// String returns the lowercase policy name.
func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// Session is one scan of one class on behalf of one aggregator.
type Session struct {
	name   string
	policy Policy
	state  atomic.Int32

	mu  sync.Mutex
	err error
}

// NewSession opens a session.
func NewSession(name string, policy Policy) *Session {
	return &Session{name: name, policy: policy}
}

// Name returns the session name used in diagnostics.
func (s *Session) Name() string { return s.name }

// Policy returns the unmatched-capture policy.
func (s *Session) Policy() Policy { return s.policy }

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

// Err returns the failure cause of a failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CheckOpen fails unless the session still accepts captures.
func (s *Session) CheckOpen(op string) error {
	if st := s.State(); st != Open {
		return fault.IllegalState(op, "session %q is %s, captures are no longer accepted", s.name, st)
	}
	return nil
}

// CheckUsable fails once the session is sealed or failed.
func (s *Session) CheckUsable(op string) error {
	if st := s.State(); st != Open && st != Building {
		return fault.IllegalState(op, "session %q is %s", s.name, st)
	}
	return nil
}

// BeginBuild moves an open session to building. It fails on any other state,
// which makes a second Build call an illegal-state error.
func (s *Session) BeginBuild() error {
	if !s.state.CompareAndSwap(int32(Open), int32(Building)) {
		return fault.IllegalState("capture.Session", "cannot build session %q in state %s", s.name, s.State())
	}
	return nil
}

// Seal moves a building session to sealed.
func (s *Session) Seal() error {
	if !s.state.CompareAndSwap(int32(Building), int32(Sealed)) {
		return fault.IllegalState("capture.Session", "cannot seal session %q in state %s", s.name, s.State())
	}
	return nil
}

// Fail marks the session failed and records the first cause.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.state.Store(int32(Failed))
}
