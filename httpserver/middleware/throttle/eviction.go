/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"

	"github.com/acronis/go-throttlegate/log"
	"github.com/acronis/go-throttlegate/service"
)

// NewEvictionWorker returns a worker that periodically forgets idle clients.
// It returns nil if the eviction is disabled in the configuration.
func (t *Throttler) NewEvictionWorker(logger log.FieldLogger) service.Worker {
	if !t.EvictionEnabled() {
		return nil
	}
	evict := service.WorkerFunc(func(_ context.Context) error {
		if evicted := t.EvictIdle(); evicted > 0 {
			logger.Debug("idle clients evicted", log.Int("evicted", evicted), log.Int("clients", t.Clients()))
		}
		return nil
	})
	return service.NewPeriodicWorkerWithOpts(evict, t.cleanupEvery, logger, service.PeriodicWorkerOpts{
		InitialDelay: t.cleanupEvery,
		Name:         "throttle_eviction",
	})
}
