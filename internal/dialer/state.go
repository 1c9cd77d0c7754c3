// Package dialer drives the dialing run of one campaign: bounded-concurrency
// per-contact tasks, pre-dial compliance and DNC checks, call monitoring and
// retry scheduling.
package dialer

import (
	"sync"

	"github.com/emirpiksel/dialara/internal/domain"
)

// State is the shared run state of one campaign, owned by the campaign
// service that started the run. In-flight tasks observe it cooperatively
// before dialing the next contact; pause and stop mutate it immediately,
// ahead of the slower persistence write.
type State struct {
	mu       sync.RWMutex
	status   domain.CampaignStatus
	inFlight int
}

// NewState creates run state in the given campaign status.
func NewState(status domain.CampaignStatus) *State {
	return &State{status: status}
}

// Status returns the currently observed campaign status.
func (s *State) Status() domain.CampaignStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus records a campaign status change for running tasks to observe.
func (s *State) SetStatus(status domain.CampaignStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// InFlight returns the number of attempts currently occupying a slot.
func (s *State) InFlight() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}

func (s *State) incInFlight() {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

func (s *State) decInFlight() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}
