package scheduler

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterCancelDeregister(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	id := uuid.New()

	token, err := registry.Register(id)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.False(t, token.Cancelled())

	assert.True(t, registry.Cancel(id))
	assert.True(t, token.Cancelled())

	registry.Deregister(id)
	assert.False(t, registry.Cancel(id), "a deregistered id has no live token")

	// The id can be reused after deregistration.
	fresh, err := registry.Register(id)
	require.NoError(t, err)
	assert.False(t, fresh.Cancelled(), "re-registration yields a fresh token")
}

func TestRegistry_DuplicateRegistrationRejected(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	id := uuid.New()

	_, err := registry.Register(id)
	require.NoError(t, err)

	_, err = registry.Register(id)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegistry_CancelUnknownID(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	assert.False(t, registry.Cancel(uuid.New()))
}

func TestCancelToken_CancelIsIdempotent(t *testing.T) {
	t.Parallel()

	token := newCancelToken()
	token.Cancel()
	token.Cancel()
	assert.True(t, token.Cancelled())
}

func TestRegistry_ConcurrentCancel(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	id := uuid.New()
	token, err := registry.Register(id)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.Cancel(id)
		}()
	}
	wg.Wait()

	assert.True(t, token.Cancelled())
}
