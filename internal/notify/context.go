package notify

import (
	"context"
	"errors"
)

// ErrStoreNotInitialized signals use of the store outside a context that
// carries one. It is a wiring error, not a runtime condition.
var ErrStoreNotInitialized = errors.New("notification store not initialized")

type storeKey struct{}

// WithStore returns a copy of ctx carrying the store.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// FromContext returns the store bound to ctx.
func FromContext(ctx context.Context) (*Store, error) {
	s, ok := ctx.Value(storeKey{}).(*Store)
	if !ok || s == nil {
		return nil, ErrStoreNotInitialized
	}
	return s, nil
}

// MustFromContext is like FromContext but panics when no store is bound.
func MustFromContext(ctx context.Context) *Store {
	s, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return s
}
