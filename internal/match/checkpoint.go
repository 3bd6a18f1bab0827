// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package match

import (
	"context"
	"errors"
	"sync"

	"github.com/pdiddy/analog-engine/pkg/types"
)

// ErrCheckpointMismatch is returned when a stored checkpoint was written for
// a different corpus or configuration than the one being resumed.
var ErrCheckpointMismatch = errors.New("checkpoint does not match current batch")

// UnitResult is the persisted outcome of one work unit (one bucket index).
type UnitResult struct {
	Index      int                   `json:"index"`
	Candidates []types.CandidatePair `json:"candidates"`
	Stats      PairStats             `json:"stats"`
}

// Checkpoint is the resumable state of a batch.
type Checkpoint struct {
	BatchID     string
	Fingerprint string
	// LastIndex is the highest bucket index below which every bucket is
	// complete, or -1.
	LastIndex int
	Units     map[int]UnitResult
}

// Checkpointer persists per-unit results. SaveUnit must be atomic: either
// the unit and its candidates are stored or nothing is.
type Checkpointer interface {
	LoadCheckpoint(ctx context.Context, batchID string) (*Checkpoint, error)
	SaveUnit(ctx context.Context, batchID, fingerprint string, unit UnitResult) error
	ClearCheckpoint(ctx context.Context, batchID string) error
}

// LastContiguous returns the highest index i such that units 0..i are all
// present, or -1.
func LastContiguous(units map[int]UnitResult) int {
	i := -1
	for {
		if _, ok := units[i+1]; !ok {
			return i
		}
		i++
	}
}

// MemoryCheckpointer keeps checkpoints in process memory. It is useful when
// no store is configured and in tests.
type MemoryCheckpointer struct {
	mu          sync.Mutex
	checkpoints map[string]*Checkpoint
}

// NewMemoryCheckpointer returns an empty in-memory checkpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{checkpoints: make(map[string]*Checkpoint)}
}

// LoadCheckpoint implements Checkpointer.
func (m *MemoryCheckpointer) LoadCheckpoint(_ context.Context, batchID string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[batchID]
	if !ok {
		return nil, nil
	}
	out := &Checkpoint{BatchID: cp.BatchID, Fingerprint: cp.Fingerprint, Units: make(map[int]UnitResult, len(cp.Units))}
	for k, v := range cp.Units {
		out.Units[k] = v
	}
	out.LastIndex = LastContiguous(out.Units)
	return out, nil
}

// SaveUnit implements Checkpointer.
func (m *MemoryCheckpointer) SaveUnit(_ context.Context, batchID, fingerprint string, unit UnitResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[batchID]
	if !ok || cp.Fingerprint != fingerprint {
		cp = &Checkpoint{BatchID: batchID, Fingerprint: fingerprint, Units: make(map[int]UnitResult)}
		m.checkpoints[batchID] = cp
	}
	cp.Units[unit.Index] = unit
	cp.LastIndex = LastContiguous(cp.Units)
	return nil
}

// ClearCheckpoint implements Checkpointer.
func (m *MemoryCheckpointer) ClearCheckpoint(_ context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, batchID)
	return nil
}
