// Package memory persists addressable documents in a flat key namespace.
// The specialist registry stores one document per specialist and one per
// template; unreadable documents are moved to a quarantine area rather than
// deleted.
package memory

import (
	"context"
	"sort"
	"strings"
)

// Store translates between external storage and the document namespace.
// Implementations are stateless: they perform I/O on each call without caching.
type Store interface {
	// List returns all available keys in the store. Quarantined keys are excluded.
	List(ctx context.Context) ([]string, error)
	// Load retrieves entries for the specified keys.
	Load(ctx context.Context, keys ...string) ([]Entry, error)
	// Save persists entries to storage, creating or overwriting as needed.
	Save(ctx context.Context, entries ...Entry) error
	// Delete removes entries from storage. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Quarantine moves a document out of the live namespace into the
	// quarantine area. The document is preserved, never deleted.
	Quarantine(ctx context.Context, key string) error
}

// ListPrefix returns the sorted keys under a namespace prefix.
func ListPrefix(ctx context.Context, store Store, namespace string) ([]string, error) {
	keys, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	prefix := namespace + "/"
	var out []string
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}
