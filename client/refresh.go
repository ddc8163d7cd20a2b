package client

import "sync"

// refreshCoordinator collapses concurrent refresh attempts into a single
// renewal. The first caller to observe an expired credential performs the
// refresh; everyone else queues and receives the same outcome, so the
// server never sees a stampede of refresh calls from one client.
type refreshCoordinator struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan error
}

// do runs fn exactly once per refresh round. Callers that arrive while a
// round is in flight block until that round completes and share its result.
func (rc *refreshCoordinator) do(fn func() error) error {
	rc.mu.Lock()
	if rc.refreshing {
		ch := make(chan error, 1)
		rc.waiters = append(rc.waiters, ch)
		rc.mu.Unlock()
		return <-ch
	}
	rc.refreshing = true
	rc.mu.Unlock()

	err := fn()

	rc.mu.Lock()
	rc.refreshing = false
	waiters := rc.waiters
	rc.waiters = nil
	rc.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
	return err
}
