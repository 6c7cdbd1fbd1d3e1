package cart

import "context"

type ctxKey struct{}

// NewContext returns a copy of ctx carrying m. Consumers resolve it with
// FromContext instead of holding their own reference.
func NewContext(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

// FromContext returns the Manager attached by NewContext, or
// ErrNotInitialized when there is none.
func FromContext(ctx context.Context) (*Manager, error) {
	m, ok := ctx.Value(ctxKey{}).(*Manager)
	if !ok || m == nil {
		return nil, ErrNotInitialized
	}
	return m, nil
}
