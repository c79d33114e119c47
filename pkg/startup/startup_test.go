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

type fakeDependency struct {
	name      string
	dependsOn []string
	startErrs int
	started   *[]string
	stopped   *[]string
}

func (f *fakeDependency) GetName() string     { return f.name }
func (f *fakeDependency) DependsOn() []string { return f.dependsOn }

func (f *fakeDependency) Start(ctx context.Context) error {
	if f.startErrs > 0 {
		f.startErrs--
		return errors.New("not ready")
	}
	*f.started = append(*f.started, f.name)
	return nil
}

func (f *fakeDependency) Stop(ctx context.Context) error {
	*f.stopped = append(*f.stopped, f.name)
	return nil
}

func TestStartOrdersByDependsOn(t *testing.T) {
	var started, stopped []string

	s := New(testLogger(), 1)
	s.AddDependency(&fakeDependency{name: "server", dependsOn: []string{"postgres", "redis"}, started: &started, stopped: &stopped})
	s.AddDependency(&fakeDependency{name: "postgres", started: &started, stopped: &stopped})
	s.AddDependency(&fakeDependency{name: "redis", started: &started, stopped: &stopped})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"postgres", "redis", "server"}, started)
}

func TestStartRetriesFailedDependencies(t *testing.T) {
	var started, stopped []string

	s := New(testLogger(), 3)
	s.AddDependency(&fakeDependency{name: "postgres", started: &started, stopped: &stopped})
	s.AddDependency(&fakeDependency{name: "redis", startErrs: 1, started: &started, stopped: &stopped})

	require.NoError(t, s.Start(context.Background()))
	// postgres started on the first attempt and is not restarted
	assert.Equal(t, []string{"postgres", "redis"}, started)
}

func TestStartGivesUpAfterMaxAttempts(t *testing.T) {
	var started, stopped []string

	s := New(testLogger(), 2)
	s.AddDependency(&fakeDependency{name: "redis", startErrs: 5, started: &started, stopped: &stopped})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup failed after 2 attempts")
}

func TestStartUnknownDependency(t *testing.T) {
	var started, stopped []string

	s := New(testLogger(), 1)
	s.AddDependency(&fakeDependency{name: "server", dependsOn: []string{"postgres"}, started: &started, stopped: &stopped})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dependency")
}

func TestStopReversesRegistrationOrder(t *testing.T) {
	var started, stopped []string

	s := New(testLogger(), 1)
	s.AddDependency(&fakeDependency{name: "postgres", started: &started, stopped: &stopped})
	s.AddDependency(&fakeDependency{name: "redis", started: &started, stopped: &stopped})
	s.AddDependency(&fakeDependency{name: "kafka", started: &started, stopped: &stopped})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"kafka", "redis", "postgres"}, stopped)
}

func TestStopSkipsNeverStarted(t *testing.T) {
	var started, stopped []string

	s := New(testLogger(), 1)
	s.AddDependency(&fakeDependency{name: "postgres", started: &started, stopped: &stopped})

	require.NoError(t, s.Stop(context.Background()))
	assert.Empty(t, stopped)
}
