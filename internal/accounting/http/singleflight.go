package accountinghttp

import "context"

// singleflightBuild coalesces identical in-flight builds. The shared flag
// reports whether the result was produced for another caller too.
func (h *Handler) singleflightBuild(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	resultChan := h.builds.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}
