package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/iap_core/internal/iap"
	"github.com/GTDGit/iap_core/internal/models"
	"github.com/GTDGit/iap_core/pkg/appstore"
)

// EntitlementWorker periodically re-validates the local receipt and tracks
// per-product expiration changes across runs.
type EntitlementWorker struct {
	validator    iap.ReceiptValidator
	sharedSecret string
	interval     time.Duration

	mu      sync.RWMutex
	current models.ProductExpirationMap
}

// NewEntitlementWorker constructs an EntitlementWorker.
func NewEntitlementWorker(validator iap.ReceiptValidator, sharedSecret string, interval time.Duration) *EntitlementWorker {
	return &EntitlementWorker{
		validator:    validator,
		sharedSecret: sharedSecret,
		interval:     interval,
	}
}

// Start validates once immediately and then on every tick until the context
// is canceled.
func (w *EntitlementWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Msg("Starting entitlement worker")

	w.run(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Entitlement worker stopped")
			return
		}
	}
}

// Current returns the most recently observed expiration map, nil before the
// first successful validation.
func (w *EntitlementWorker) Current() models.ProductExpirationMap {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.current == nil {
		return nil
	}
	snapshot := make(models.ProductExpirationMap, len(w.current))
	for id, t := range w.current {
		snapshot[id] = t
	}
	return snapshot
}

func (w *EntitlementWorker) run(ctx context.Context) {
	result, err := w.validator.Validate(ctx, w.sharedSecret)
	if err != nil {
		log.Error().Err(err).Msg("Receipt validation failed")
		return
	}
	if result.Status == appstore.StatusNoReceipt {
		log.Debug().Msg("No receipt on this machine")
		return
	}
	if result.Status != appstore.StatusValid {
		log.Warn().Int("status", result.Status).Msg("Receipt rejected by verification server")
		return
	}

	w.mu.Lock()
	previous := w.current
	w.current = result.Products
	w.mu.Unlock()

	for id, expiresAt := range result.Products {
		if prev, ok := previous[id]; !ok || !prev.Equal(expiresAt) {
			log.Info().
				Str("product_id", string(id)).
				Time("expires_at", expiresAt).
				Msg("Product entitlement updated")
		}
	}
}
