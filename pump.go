package usbdevice

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// completionPump is C6: a single worker that receives HCI completions and
// invokes client completion callbacks off the HCI context, per spec.md
// §4.6. It is per device, not per system, to preserve per-device FIFO
// ordering of completions.
//
// The worker's lifecycle is managed by an errgroup.Group rather than a
// hand-rolled sync.WaitGroup + channel: stopAndWait sets the stop flag,
// wakes the worker and Waits on the group, and cancels the group's context
// only after the worker has returned. The worker also exits, without
// draining, if the context passed to start is cancelled.
type completionPump struct {
	mu        sync.Mutex
	completed []*Request
	stop      bool

	signal chan struct{}

	group  *errgroup.Group
	cancel context.CancelFunc
}

func newCompletionPump() *completionPump {
	return &completionPump{signal: make(chan struct{}, 1)}
}

// start launches the single worker goroutine. It must be called before the
// device is published (spec.md §4.7 step 7), because publishing may
// recursively bind drivers that immediately queue transfers.
func (p *completionPump) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	p.cancel = cancel
	p.group = group
	group.Go(func() error {
		p.run(gctx)
		return nil
	})
}

func (p *completionPump) run(ctx context.Context) {
	for {
		select {
		case <-p.signal:
		case <-ctx.Done():
			return
		}

		p.mu.Lock()
		stop := p.stop
		local := p.completed
		p.completed = nil
		p.mu.Unlock()

		for _, req := range local {
			if req.Callback != nil {
				req.Callback(req)
			}
		}

		if stop {
			return
		}
	}
}

// trampoline is the callback substituted by the Request Queue Shim (C5).
// It runs on HCI's own completion context: under the mutex it restores the
// request's saved callback/cookie fields and appends to the completed
// list; outside the mutex it signals the worker.
func (p *completionPump) trampoline(req *Request) {
	p.mu.Lock()
	req.Callback = req.savedCallback
	req.Cookie = req.savedCookie
	p.completed = append(p.completed, req)
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// stopAndWait sets the stop flag under the mutex, wakes the worker, and
// joins it, guaranteeing no client callback runs after it returns (spec.md
// §4.7 release, §5 cancellation).
func (p *completionPump) stopAndWait() error {
	p.mu.Lock()
	p.stop = true
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}

	if p.cancel != nil {
		defer p.cancel()
	}
	if p.group == nil {
		return nil
	}
	return p.group.Wait()
}
