package storage

import (
	"context"
	"fmt"
	"strings"
)

// Namespaced scopes a shared Store to one key prefix so several caches can
// live in one bucket without seeing each other's entries.
type Namespaced struct {
	inner  Store
	prefix string
}

// Namespace wraps s so every key is stored under ns. Clear only removes keys
// in ns and requires s to implement Lister.
func Namespace(s Store, ns string) *Namespaced {
	return &Namespaced{inner: s, prefix: sanitizeKey(ns) + "-"}
}

func (n *Namespaced) key(k string) string {
	return n.prefix + k
}

// Get implements Store.
func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.key(key))
}

// Put implements Store.
func (n *Namespaced) Put(ctx context.Context, key string, data []byte) error {
	return n.inner.Put(ctx, n.key(key), data)
}

// Delete implements Store.
func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.key(key))
}

// Keys implements Lister. Returned keys have the namespace stripped.
func (n *Namespaced) Keys(ctx context.Context) ([]string, error) {
	lister, ok := n.inner.(Lister)
	if !ok {
		return nil, fmt.Errorf("store %T cannot list keys", n.inner)
	}
	all, err := lister.Keys(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, k := range all {
		if strings.HasPrefix(k, n.prefix) {
			keys = append(keys, strings.TrimPrefix(k, n.prefix))
		}
	}
	return keys, nil
}

// Clear implements Store.
func (n *Namespaced) Clear(ctx context.Context) (int, error) {
	keys, err := n.Keys(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := n.Delete(ctx, k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
