package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// CancelRegistry tracks the cancel hierarchy of active runs: one context per
// run and one child context per (run, model) worker. Model contexts are
// derived from their run context, so cancelling a run reaches every worker
// and, through the request contexts, every in-flight HTTP stream.
type CancelRegistry struct {
	mu     sync.Mutex
	runs   map[string]*runEntry
	logger *zap.Logger
}

type runEntry struct {
	ctx         context.Context
	cancel      context.CancelFunc
	models      map[string]context.CancelFunc // model id → worker cancel
	cancelledBy string
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry(logger *zap.Logger) *CancelRegistry {
	return &CancelRegistry{
		runs:   make(map[string]*runEntry),
		logger: logger.With(zap.String("component", "cancel-registry")),
	}
}

// RegisterRun creates and registers the run-level context. An existing entry
// for the same run id is cancelled and replaced (re-execution of an errored
// run).
func (r *CancelRegistry) RegisterRun(parent context.Context, runID string) context.Context {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	if old, ok := r.runs[runID]; ok {
		old.cancel()
	}
	r.runs[runID] = &runEntry{
		ctx:    ctx,
		cancel: cancel,
		models: make(map[string]context.CancelFunc),
	}
	r.mu.Unlock()

	return ctx
}

// RegisterModel creates a worker context under the run's context. Returns a
// cancelled context if the run is not registered (already terminal).
func (r *CancelRegistry) RegisterModel(runID, modelID string) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.runs[runID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	ctx, cancel := context.WithCancel(entry.ctx)
	entry.models[modelID] = cancel
	return ctx
}

// CancelRun triggers the run context, which propagates to every registered
// model context, and records who asked. Returns false if the run has no
// active entry.
func (r *CancelRegistry) CancelRun(runID, by string) bool {
	r.mu.Lock()
	entry, ok := r.runs[runID]
	if ok && entry.cancelledBy == "" {
		entry.cancelledBy = by
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	entry.cancel()
	r.logger.Info("Run cancelled",
		zap.String("run_id", runID),
		zap.String("cancelled_by", by),
	)
	return true
}

// CancelModel triggers a single worker's context, leaving its siblings
// untouched. Returns false if no such worker is registered.
func (r *CancelRegistry) CancelModel(runID, modelID string) bool {
	r.mu.Lock()
	entry, ok := r.runs[runID]
	var cancel context.CancelFunc
	if ok {
		cancel = entry.models[modelID]
	}
	r.mu.Unlock()
	if cancel == nil {
		return false
	}

	cancel()
	r.logger.Info("Model worker cancelled",
		zap.String("run_id", runID),
		zap.String("model_id", modelID),
	)
	return true
}

// CancelledBy returns the tag recorded by CancelRun, or "user" if the run
// was cancelled without one.
func (r *CancelRegistry) CancelledBy(runID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.runs[runID]; ok && entry.cancelledBy != "" {
		return entry.cancelledBy
	}
	return "user"
}

// RunCancelled reports whether the run's context has been triggered.
func (r *CancelRegistry) RunCancelled(runID string) bool {
	r.mu.Lock()
	entry, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return entry.ctx.Err() != nil
}

// Cleanup removes all entries for a run on terminal transition, cancelling
// any contexts still alive so nothing leaks.
func (r *CancelRegistry) Cleanup(runID string) {
	r.mu.Lock()
	entry, ok := r.runs[runID]
	delete(r.runs, runID)
	r.mu.Unlock()
	if !ok {
		return
	}

	for _, cancel := range entry.models {
		cancel()
	}
	entry.cancel()
}
