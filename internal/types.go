package internal

import (
	"errors"

	"sjsage522/hotpostcollector/internal/store"
	"sjsage522/hotpostcollector/services/cache"
	"sjsage522/hotpostcollector/services/publisher"
)

// Dependencies holds all service dependencies. Cache and Publisher are nil
// when their backends are not configured.
type Dependencies struct {
	Store     *store.Store
	Cache     cache.CacheService
	Publisher publisher.Publisher
}

// Close releases every dependency that holds a connection
func (d *Dependencies) Close() error {
	var errs []error
	if d.Publisher != nil {
		errs = append(errs, d.Publisher.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}
