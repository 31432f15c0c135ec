package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"budgetbook/internal/store"
)

// ErrNotInitialized is returned by Get before Init or after Reset.
var ErrNotInitialized = errors.New("backend not initialized")

// State of a Handle.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateReset
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateReset:
		return "reset"
	}
	return "uninitialized"
}

// Handle owns the process-wide backend connection. Re-initialising a ready
// handle tears the previous backend down and replaces it.
type Handle struct {
	mu      sync.RWMutex
	state   State
	current *BackendResult
	config  Config
	logger  *slog.Logger
}

func NewHandle(logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{logger: logger}
}

var defaultHandle = NewHandle(nil)

// Default returns the process-wide handle.
func Default() *Handle {
	return defaultHandle
}

// Init creates a backend with factory, bounded by timeout when positive.
// On failure the handle keeps its previous state.
func (h *Handle) Init(ctx context.Context, factory Factory, config Config, timeout time.Duration) (store.Backend, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := createWithin(ctx, factory, config)
	if err != nil {
		return nil, fmt.Errorf("backend bootstrap: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateReady {
		h.logger.Info("Replacing backend", "previous", h.config.Type, "next", config.Type)
		h.teardownLocked()
	}
	h.current = result
	h.config = config
	h.state = StateReady
	return result.Backend, nil
}

// Get returns the ready backend.
func (h *Handle) Get() (store.Backend, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state != StateReady || h.current == nil {
		return nil, ErrNotInitialized
	}
	return h.current.Backend, nil
}

// Reset tears down the current backend. Later Get calls fail until Init.
func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateReady {
		h.teardownLocked()
	}
	h.current = nil
	h.state = StateReset
}

func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handle) teardownLocked() {
	if h.current == nil || h.current.Cleanup == nil {
		return
	}
	if err := h.current.Cleanup(); err != nil {
		h.logger.Warn("Backend cleanup failed", "type", h.config.Type, "error", err)
	}
}

// createWithin runs the factory and gives up once ctx is done. A backend
// that finishes after the deadline is cleaned up in the background.
func createWithin(ctx context.Context, factory Factory, config Config) (*BackendResult, error) {
	type outcome struct {
		result *BackendResult
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		r, err := factory.CreateBackend(ctx, config)
		ch <- outcome{r, err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		go func() {
			if o := <-ch; o.err == nil && o.result != nil && o.result.Cleanup != nil {
				_ = o.result.Cleanup()
			}
		}()
		return nil, ctx.Err()
	}
}
