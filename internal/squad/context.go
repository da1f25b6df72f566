package squad

import "context"

type bridgeKey struct{}

// NewContext returns a copy of ctx carrying b.
func NewContext(ctx context.Context, b *Bridge) context.Context {
	return context.WithValue(ctx, bridgeKey{}, b)
}

// FromContext returns the Bridge stored by NewContext.
func FromContext(ctx context.Context) (*Bridge, bool) {
	b, ok := ctx.Value(bridgeKey{}).(*Bridge)
	return b, ok && b != nil
}
