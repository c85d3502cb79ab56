package store

import (
	"context"
	"strings"
)

// NewStore picks the external store: Postgres when databaseURL is set,
// otherwise Badger at badgerPath, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL, badgerPath string) (Store, string, error) {
	if strings.TrimSpace(databaseURL) != "" {
		s, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, "", err
		}
		return s, "postgres", nil
	}
	if strings.TrimSpace(badgerPath) != "" {
		s, err := OpenBadgerStore(badgerPath)
		if err != nil {
			return nil, "", err
		}
		return s, "badger", nil
	}
	return NewInMemoryStore(), "in-memory", nil
}
