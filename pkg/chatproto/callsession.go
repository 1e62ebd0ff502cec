package chatproto

import (
	"errors"
	"fmt"
	"sync"
)

// CallState is the client-side view of a call's progress. The server relays
// signaling statelessly; each peer tracks its own session with this machine.
type CallState int

const (
	CallIdle CallState = iota
	CallOffering
	CallAnswered
	CallActive
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallOffering:
		return "offering"
	case CallAnswered:
		return "answered"
	case CallActive:
		return "active"
	case CallEnded:
		return "ended"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

var ErrInvalidCallTransition = errors.New("invalid call transition")

// CallSession tracks one call with one peer.
type CallSession struct {
	mu    sync.Mutex
	peer  string
	state CallState
}

func NewCallSession(peerID string) *CallSession {
	return &CallSession{peer: peerID, state: CallIdle}
}

func (c *CallSession) Peer() string { return c.peer }

func (c *CallSession) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CallSession) transition(from []CallState, to CallState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range from {
		if c.state == s {
			c.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidCallTransition, c.state, to)
}

// Offer marks the session as ringing, either because we sent call-user or
// because incoming-call arrived.
func (c *CallSession) Offer() error {
	return c.transition([]CallState{CallIdle}, CallOffering)
}

// Answer marks the offer as answered, on either side.
func (c *CallSession) Answer() error {
	return c.transition([]CallState{CallOffering}, CallAnswered)
}

// Connected marks media as flowing after ICE completes.
func (c *CallSession) Connected() error {
	return c.transition([]CallState{CallAnswered}, CallActive)
}

// End terminates the session. Ending is valid from any live state, so a
// call-ended arriving before the answer still lands cleanly.
func (c *CallSession) End() error {
	return c.transition([]CallState{CallOffering, CallAnswered, CallActive}, CallEnded)
}
