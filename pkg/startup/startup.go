// Package startup orders service dependencies for boot and shutdown.
// Dependencies start in registration order after anything they name in
// DependsOn, retry with fibonacci backoff, and stop in reverse order.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// Dependency is one startable piece of the service.
type Dependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Func adapts start and stop closures to a Dependency.
type Func struct {
	Name      string
	Needs     []string
	StartFunc func(ctx context.Context) error
	StopFunc  func(ctx context.Context) error
}

func (f Func) GetName() string     { return f.Name }
func (f Func) DependsOn() []string { return f.Needs }

func (f Func) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.StopFunc == nil {
		return nil
	}
	return f.StopFunc(ctx)
}

// Status tracks one dependency through the lifecycle.
type Status int

const (
	StatusPending Status = iota
	StatusStarted
	StatusStopped
	StatusFailed
)

// Startup starts and stops dependencies in a stable order.
type Startup struct {
	order        []string
	dependencies map[string]Dependency
	statuses     map[string]Status
	logger       ectologger.Logger
	maxAttempts  int
}

// New returns a Startup that gives each boot maxAttempts tries.
func New(logger ectologger.Logger, maxAttempts int) *Startup {
	return &Startup{
		dependencies: make(map[string]Dependency),
		statuses:     make(map[string]Status),
		logger:       logger,
		maxAttempts:  maxAttempts,
	}
}

// AddDependency registers a dependency. Registration order is the start
// order for dependencies that do not name each other in DependsOn.
func (s *Startup) AddDependency(dependency Dependency) {
	name := dependency.GetName()
	if _, exists := s.dependencies[name]; !exists {
		s.order = append(s.order, name)
	}
	s.dependencies[name] = dependency
}

// Start boots every dependency, retrying the whole sequence with fibonacci
// backoff until it succeeds or maxAttempts is spent. Dependencies that came
// up on an earlier attempt are not restarted.
func (s *Startup) Start(ctx context.Context) error {
	wait, next := 1, 1

	for attempt := 1; ; attempt++ {
		s.logger.WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		err := s.startAll(ctx)
		if err == nil {
			return nil
		}
		if attempt >= s.maxAttempts {
			return fmt.Errorf("startup failed after %d attempts: %w", attempt, err)
		}

		s.logger.Infof("Retrying startup in %d seconds (attempt %d/%d)", wait, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(wait) * time.Second):
		}
		wait, next = next, wait+next
	}
}

func (s *Startup) startAll(ctx context.Context) error {
	for _, name := range s.order {
		if err := s.startDependency(ctx, s.dependencies[name]); err != nil {
			s.logger.WithError(err).Errorf("Dependency '%s' failed to start", name)
			return err
		}
	}
	return nil
}

func (s *Startup) startDependency(ctx context.Context, dep Dependency) error {
	name := dep.GetName()
	if s.statuses[name] == StatusStarted {
		return nil
	}

	for _, neededName := range dep.DependsOn() {
		if s.statuses[neededName] == StatusStarted {
			continue
		}
		needed, ok := s.dependencies[neededName]
		if !ok {
			return fmt.Errorf("dependency '%s' needs unregistered dependency '%s'", name, neededName)
		}
		if err := s.startDependency(ctx, needed); err != nil {
			return err
		}
	}

	s.logger.WithField("dependency", name).Infof("Starting dependency '%s'", name)
	s.statuses[name] = StatusPending

	if err := dep.Start(ctx); err != nil {
		s.statuses[name] = StatusFailed
		s.logger.WithError(err).WithField("dependency", name).Errorf("Failed to start dependency '%s'", name)
		return err
	}

	s.statuses[name] = StatusStarted
	return nil
}

// Stop shuts down started dependencies in reverse registration order.
func (s *Startup) Stop(ctx context.Context) error {
	for i := len(s.order) - 1; i >= 0; i-- {
		name := s.order[i]
		if s.statuses[name] != StatusStarted {
			continue
		}
		if err := s.stopDependency(ctx, s.dependencies[name]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Startup) stopDependency(ctx context.Context, dep Dependency) error {
	name := dep.GetName()
	s.logger.WithField("dependency", name).Infof("Stopping dependency '%s'", name)

	if err := dep.Stop(ctx); err != nil {
		s.logger.WithError(err).WithField("dependency", name).Errorf("Failed to stop dependency '%s'", name)
		return err
	}

	s.statuses[name] = StatusStopped
	return nil
}
