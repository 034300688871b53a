package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	name     string
	startErr error
	events   *[]string
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Start(_ context.Context) error {
	*f.events = append(*f.events, "start:"+f.name)
	return f.startErr
}

func (f *fakeService) Stop(_ context.Context) error {
	*f.events = append(*f.events, "stop:"+f.name)
	return nil
}

func TestManagerStartsInOrderStopsInReverse(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&fakeService{name: "a", events: &events}))
	require.NoError(t, m.Register(&fakeService{name: "b", events: &events}))

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))

	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, events)
}

func TestManagerStartFailureUnwindsStartedServices(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&fakeService{name: "a", events: &events}))
	require.NoError(t, m.Register(&fakeService{name: "b", startErr: errors.New("boom"), events: &events}))
	require.NoError(t, m.Register(&fakeService{name: "c", events: &events}))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, events)
}

func TestManagerRejectsRegistrationAfterStart(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&fakeService{name: "a", events: &events}))
	require.NoError(t, m.Start(context.Background()))

	err := m.Register(&fakeService{name: "late", events: &events})
	require.Error(t, err)
}

func TestManagerStopIsIdempotent(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(&fakeService{name: "a", events: &events}))
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.Stop(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, []string{"start:a", "stop:a"}, events)
}
