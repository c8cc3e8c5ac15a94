package scheduler

import (
	"sync"

	"github.com/google/uuid"
)

// CancelToken is a cooperative cancellation flag for one batch. It is
// consulted only at dispatch boundaries; nothing aborts an executor call
// already in progress.
type CancelToken struct {
	done chan struct{}
	once sync.Once
}

func newCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel flips the token. Safe to call more than once.
func (t *CancelToken) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Cancelled reports whether the token has been flipped.
func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Registry holds per-batch cancellation tokens keyed by batch id. The
// registry is the only cancellation sink: a caller stops a batch by
// cancelling its registered token.
type Registry struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*CancelToken
}

// NewRegistry creates an empty cancellation registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[uuid.UUID]*CancelToken)}
}

// Register creates and stores a token for the given batch. Returns
// ErrAlreadyRegistered if a live token exists for the id.
func (r *Registry) Register(id uuid.UUID) (*CancelToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[id]; exists {
		return nil, ErrAlreadyRegistered
	}

	token := newCancelToken()
	r.tokens[id] = token
	return token, nil
}

// Cancel flips the token registered for the given batch. Returns whether a
// live registration was found.
func (r *Registry) Cancel(id uuid.UUID) bool {
	r.mu.Lock()
	token, exists := r.tokens[id]
	r.mu.Unlock()

	if !exists {
		return false
	}

	token.Cancel()
	return true
}

// Deregister removes the token for the given batch, if any.
func (r *Registry) Deregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
}
