package usbdevice

import "sync/atomic"

// langIDCache is the one-shot, lazily-initialized language-ID table cell of
// spec.md §3/§5/§9: published atomically so the fast read path after first
// fetch is lock-free, with release/acquire ordering between the writer that
// publishes and readers that only ever see "uninitialized" or
// "fully-initialized," never a partial raw slice.
type langIDCache struct {
	fetched atomic.Bool
	raw     atomic.Pointer[[]byte]
}

// get returns the cached language-ID table and true if it has already been
// fetched; otherwise (nil, false) and the caller is responsible for
// fetching and calling publish exactly once (races between concurrent
// first-fetchers are resolved by publish's compare-and-swap).
func (c *langIDCache) get() ([]byte, bool) {
	if !c.fetched.Load() {
		return nil, false
	}
	p := c.raw.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// publish installs raw as the cached table if no other caller has already
// done so, returning the table that ended up cached (the caller's own value
// if it won the race, or the winner's value otherwise) so every caller
// converges on the same bytes.
func (c *langIDCache) publish(raw []byte) []byte {
	if c.raw.CompareAndSwap(nil, &raw) {
		c.fetched.Store(true)
		return raw
	}
	for {
		if p := c.raw.Load(); p != nil {
			return *p
		}
	}
}
