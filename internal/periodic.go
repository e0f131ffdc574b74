package internal

import (
	"context"
	"time"
)

// periodic calls fn every interval on its own goroutine until stopped.
type periodic struct {
	stop chan struct{}
	done chan struct{}
}

func startPeriodic(ctx context.Context, interval time.Duration, fn func(context.Context)) *periodic {
	p := &periodic{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return p
}

// Stop ends the loop and waits for a running fn to return. It may be called
// more than once.
func (p *periodic) Stop() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	<-p.done
}
