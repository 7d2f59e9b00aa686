// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from ctx1 (the session context,
// which carries the CDP connection values) that is also canceled when
// ctx2 (the operational context) is done. chromedp requires the
// session context's values, so plain context.WithCancel(ctx2) would
// sever the tab connection.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext inherits values from its parent but ignores the
// parent's deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (valueOnlyContext) Done() <-chan struct{}       { return nil }
func (valueOnlyContext) Err() error                  { return nil }

// Detach returns a context carrying ctx's values that outlives ctx's
// cancellation. Used for teardown work against a tab whose operation
// context already ended.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
