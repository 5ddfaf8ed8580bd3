package startup

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type recordingDep struct {
	name             string
	needs            []string
	events           *[]string
	startErr         error
	failUntilAttempt int
	startCalls       int
}

func (d *recordingDep) GetName() string     { return d.name }
func (d *recordingDep) DependsOn() []string { return d.needs }

func (d *recordingDep) Start(_ context.Context) error {
	d.startCalls++
	if d.failUntilAttempt > 0 && d.startCalls < d.failUntilAttempt {
		return errors.New("not yet")
	}
	if d.startErr != nil {
		return d.startErr
	}
	*d.events = append(*d.events, "start:"+d.name)
	return nil
}

func (d *recordingDep) Stop(_ context.Context) error {
	*d.events = append(*d.events, "stop:"+d.name)
	return nil
}

func TestStartHonorsRegistrationOrder(t *testing.T) {
	var events []string
	s := New(testLogger(), 1)
	s.AddDependency(&recordingDep{name: "database", events: &events})
	s.AddDependency(&recordingDep{name: "worker", events: &events})
	s.AddDependency(&recordingDep{name: "http", events: &events})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:database", "start:worker", "start:http"}, events)
}

func TestStartHonorsDependsOn(t *testing.T) {
	var events []string
	s := New(testLogger(), 1)
	s.AddDependency(&recordingDep{name: "worker", needs: []string{"database"}, events: &events})
	s.AddDependency(&recordingDep{name: "database", events: &events})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:database", "start:worker"}, events)
}

func TestStartUnknownDependency(t *testing.T) {
	var events []string
	s := New(testLogger(), 1)
	s.AddDependency(&recordingDep{name: "worker", needs: []string{"ghost"}, events: &events})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestStartRetriesWithoutRestartingStartedDeps(t *testing.T) {
	var events []string
	s := New(testLogger(), 3)
	stable := &recordingDep{name: "database", events: &events}
	flaky := &recordingDep{name: "kafka", events: &events, failUntilAttempt: 2}
	s.AddDependency(stable)
	s.AddDependency(flaky)

	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, 1, stable.startCalls, "started deps stay started across retries")
	assert.Equal(t, 2, flaky.startCalls)
	assert.Equal(t, []string{"start:database", "start:kafka"}, events)
}

func TestStartExhaustsAttempts(t *testing.T) {
	var events []string
	s := New(testLogger(), 2)
	s.AddDependency(&recordingDep{name: "kafka", events: &events, startErr: errors.New("broker down")})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestStopReversesOrderAndSkipsUnstarted(t *testing.T) {
	var events []string
	s := New(testLogger(), 1)
	s.AddDependency(&recordingDep{name: "database", events: &events})
	s.AddDependency(&recordingDep{name: "worker", events: &events})
	s.AddDependency(&recordingDep{name: "http", events: &events, startErr: errors.New("port taken")})

	require.Error(t, s.Start(context.Background()))

	events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:worker", "stop:database"}, events)
}

func TestFuncAdapter(t *testing.T) {
	started := false
	dep := Func{
		Name:      "outbox-worker",
		Needs:     []string{"database"},
		StartFunc: func(_ context.Context) error { started = true; return nil },
	}

	assert.Equal(t, "outbox-worker", dep.GetName())
	assert.Equal(t, []string{"database"}, dep.DependsOn())
	require.NoError(t, dep.Start(context.Background()))
	assert.True(t, started)
	require.NoError(t, dep.Stop(context.Background()), "nil StopFunc is a no-op")
}
