package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// runRegistry tracks generation attempts running in this process, one per report.
type runRegistry struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*activeRun
}

type activeRun struct {
	runID  uuid.UUID
	cancel context.CancelFunc
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: map[uuid.UUID]*activeRun{}}
}

// claim registers runID for reportID; false when a run for reportID is already registered.
func (r *runRegistry) claim(reportID, runID uuid.UUID, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.runs[reportID]; busy {
		return false
	}
	r.runs[reportID] = &activeRun{runID: runID, cancel: cancel}
	return true
}

// release removes the entry only if runID still owns it.
func (r *runRegistry) release(reportID, runID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.runs[reportID]; ok && cur.runID == runID {
		delete(r.runs, reportID)
	}
}

func (r *runRegistry) cancel(reportID uuid.UUID) bool {
	r.mu.Lock()
	cur, ok := r.runs[reportID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	cur.cancel()
	return true
}
