package wallet

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"
)

// State is the single authoritative session. The connector is its only
// writer; any number of readers take snapshots or subscribe to changes.
//
// Every write is tagged with a token from begin. Only the newest token may
// commit, so a slow sync for a previous address can never overwrite the
// session of the current one.
type State struct {
	sendMu  sync.Mutex // orders commits with their feed delivery
	mu      sync.RWMutex
	session Session
	latest  uint64
	feed    event.Feed
}

// NewState returns a state holding an empty session.
func NewState() *State {
	return &State{session: emptySession()}
}

// Snapshot returns a copy of the current session.
func (s *State) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.session)
}

// Subscribe delivers every committed session to ch. Slow receivers block
// commits, so ch should be buffered or drained promptly.
func (s *State) Subscribe(ch chan<- Session) event.Subscription {
	return s.feed.Subscribe(ch)
}

// begin issues a new write token, superseding all earlier ones.
func (s *State) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	return s.latest
}

// commit stores sess if token is still the newest and reports whether it did.
func (s *State) commit(token uint64, sess Session) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if token != s.latest {
		s.mu.Unlock()
		return false
	}
	s.session = copySession(sess)
	out := copySession(sess)
	s.mu.Unlock()

	s.feed.Send(out)
	return true
}

func copySession(s Session) Session {
	out := s
	out.Transactions = make([]TxRecord, len(s.Transactions))
	copy(out.Transactions, s.Transactions)
	return out
}
