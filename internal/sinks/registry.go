// Package sinks fans usage notifications out to every registered delivery
// channel.
package sinks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"focusguard/internal/intervention"
)

var (
	ErrSinkNotFound      = errors.New("sink not found")
	ErrSinkAlreadyExists = errors.New("sink already registered")
)

// DefaultTimeout bounds a single sink delivery
const DefaultTimeout = 10 * time.Second

// Sink delivers a notification to the user
type Sink interface {
	Name() string
	Notify(ctx context.Context, packageID, message string) error
}

// Registry manages all registered sinks. Notify never blocks the caller:
// each sink is invoked on its own goroutine with a timeout.
type Registry struct {
	mu      sync.RWMutex
	sinks   map[string]Sink
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewRegistry creates a new sink registry
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sinks:   make(map[string]Sink),
		timeout: timeout,
		logger:  logger.With("component", "sinks"),
	}
}

// Register adds a sink to the registry
func (r *Registry) Register(sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := sink.Name()
	if _, exists := r.sinks[name]; exists {
		return fmt.Errorf("%w: %s", ErrSinkAlreadyExists, name)
	}

	r.sinks[name] = sink
	return nil
}

// Get retrieves a sink by name
func (r *Registry) Get(name string) (Sink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, exists := r.sinks[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSinkNotFound, name)
	}

	return sink, nil
}

// List returns all registered sink names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a sink from the registry
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinks[name]; !exists {
		return fmt.Errorf("%w: %s", ErrSinkNotFound, name)
	}

	delete(r.sinks, name)
	return nil
}

// Notify dispatches the message to every sink and returns immediately.
// Delivery errors are logged.
func (r *Registry) Notify(ctx context.Context, packageID, message string) error {
	r.mu.RLock()
	targets := make([]Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	for _, s := range targets {
		r.wg.Add(1)
		go r.deliver(context.WithoutCancel(ctx), s, packageID, message)
	}
	return nil
}

// Wait blocks until all in-flight deliveries have finished
func (r *Registry) Wait() {
	r.wg.Wait()
}

func (r *Registry) deliver(ctx context.Context, s Sink, packageID, message string) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in sink", "sink", s.Name(), "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := s.Notify(ctx, packageID, message); err != nil {
		r.logger.Warn("notification delivery failed",
			"sink", s.Name(),
			"package_id", packageID,
			"error", err)
		return
	}
	r.logger.Debug("notification delivered", "sink", s.Name(), "package_id", packageID)
}

var _ intervention.Sink = (*Registry)(nil)
