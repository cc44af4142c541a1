package asyncprim

import "context"

// FromContext bridges a context.Context into a [CancelToken]: the returned
// token cancels (with ctx.Err() as its reason) when ctx is done. If ctx is
// already done, the returned token is already cancelled.
func FromContext(ctx context.Context) CancelToken {
	if ctx == nil || ctx.Err() == nil && ctx.Done() == nil {
		return NoCancel
	}

	src := NewCancelSource()

	select {
	case <-ctx.Done():
		src.Cancel(ctx.Err())
		return src.Token()
	default:
	}

	go func() {
		<-ctx.Done()
		src.Cancel(ctx.Err())
	}()

	return src.Token()
}
