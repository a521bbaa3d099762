package secret

import (
	"context"
	"sync/atomic"
)

// Cached fetches a credential from its source on first use and returns the
// stored value afterwards. Concurrent first calls may each fetch; the last
// one stored wins. No lock is held around the fetch.
type Cached struct {
	source Source
	value  atomic.Pointer[string]
}

// NewCached wraps source with a process-lifetime cache.
func NewCached(source Source) *Cached {
	return &Cached{source: source}
}

// Token returns the cached credential, fetching it if none is stored.
// Failed fetches are not cached.
func (c *Cached) Token(ctx context.Context) (string, error) {
	if v := c.value.Load(); v != nil {
		return *v, nil
	}

	token, err := c.source.Token(ctx)
	if err != nil {
		return "", err
	}
	c.value.Store(&token)
	return token, nil
}

// Reset drops the cached value so the next Token call fetches again.
func (c *Cached) Reset() {
	c.value.Store(nil)
}
