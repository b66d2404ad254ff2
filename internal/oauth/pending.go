package oauth

import (
	"fmt"
	"sync"
	"time"
)

// PendingFlow is one in-flight authorization-code request: the PKCE
// verifier and state it was started with, and the account slot it is
// logging into.
type PendingFlow struct {
	Provider  string
	Slot      int
	Verifier  string
	State     string
	CreatedAt time.Time
}

const pendingFlowTTL = 10 * time.Minute

// PendingTable is the short-lived, mutex-guarded table of in-flight OAuth
// flows keyed by their state token, so the loopback callback can find the
// verifier that started the flow it's completing.
type PendingTable struct {
	mu    sync.Mutex
	flows map[string]PendingFlow
}

func NewPendingTable() *PendingTable {
	return &PendingTable{flows: map[string]PendingFlow{}}
}

func (t *PendingTable) Start(provider string, slot int) (PendingFlow, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return PendingFlow{}, err
	}

	state, err := GenerateState()
	if err != nil {
		return PendingFlow{}, err
	}

	flow := PendingFlow{
		Provider:  provider,
		Slot:      slot,
		Verifier:  verifier,
		State:     state,
		CreatedAt: time.Now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictExpiredLocked()
	t.flows[state] = flow

	return flow, nil
}

// Complete pops and returns the pending flow for a given state, failing if
// it is unknown or has expired.
func (t *PendingTable) Complete(state string) (PendingFlow, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpiredLocked()

	flow, ok := t.flows[state]
	if !ok {
		return PendingFlow{}, fmt.Errorf("no pending oauth flow for state %q", state)
	}

	delete(t.flows, state)

	return flow, nil
}

func (t *PendingTable) evictExpiredLocked() {
	cutoff := time.Now().Add(-pendingFlowTTL)
	for state, flow := range t.flows {
		if flow.CreatedAt.Before(cutoff) {
			delete(t.flows, state)
		}
	}
}
