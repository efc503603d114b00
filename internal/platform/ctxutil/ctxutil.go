package ctxutil

import "context"

// Default guards outbound clients against a nil context slipping in
// through optional call paths.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
