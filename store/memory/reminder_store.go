package memory

import (
	"context"
	"sync"

	"github.com/YatraLedger/yatra-ledger-backend/types"
)

// ReminderStore is the in-memory reminder bookkeeping store. The scheduler
// falls back to it when no durable store is available; the timing guarantee
// then only holds within the process lifetime (documented degradation).
type ReminderStore struct {
	mu     sync.Mutex
	states map[string]types.ReminderState
}

// NewReminderStore creates an empty in-memory reminder store.
func NewReminderStore() *ReminderStore {
	return &ReminderStore{states: make(map[string]types.ReminderState)}
}

func (r *ReminderStore) Get(ctx context.Context, tripID string) (types.ReminderState, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[tripID]
	return state, ok, nil
}

func (r *ReminderStore) Set(ctx context.Context, tripID string, state types.ReminderState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[tripID] = state
	return nil
}

func (r *ReminderStore) Delete(ctx context.Context, tripID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, tripID)
	return nil
}
