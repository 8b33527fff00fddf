package commands

import (
	"context"
	"sync"
)

type loop interface {
	Run(ctx context.Context) error
}

// runLoops runs foreground in the calling goroutine and every background loop next to it. Once it
// returns (interrupted or failed at startup) the background loops are cancelled and waited for,
// the result is the foreground error.
func runLoops(ctx context.Context, foreground loop, background ...loop) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := sync.WaitGroup{}
	for _, l := range background {
		wg.Add(1)
		go func(l loop) {
			defer wg.Done()
			l.Run(ctx)
		}(l)
	}

	err := foreground.Run(ctx)
	cancel()
	wg.Wait()
	return err
}
