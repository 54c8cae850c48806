package consult

import "context"

type depthKey struct{}

// WithDepth records the consultation depth on ctx.
func WithDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

// DepthFrom returns the consultation depth carried by ctx, 0 at the top.
func DepthFrom(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}
