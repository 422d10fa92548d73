package iap

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/iap_core/internal/models"
	"github.com/GTDGit/iap_core/pkg/appstore"
)

// ProductsRequestHandler receives the outcome of a product-metadata request.
type ProductsRequestHandler func(resp *ProductsResponse, err error)

// PurchaseHandler receives the outcome of a purchase. productID is empty on
// failure.
type PurchaseHandler func(productID models.ProductIdentifier, err error)

// RestoreHandler receives the set of restored product identifiers. Both an
// empty set and an error can be delivered together; an empty set with a nil
// error means there was nothing to restore.
type RestoreHandler func(restored models.ProductIdentifierSet, err error)

// ReceiptValidator yields a verification verdict for the locally stored
// receipt. *appstore.Client is the production implementation.
type ReceiptValidator interface {
	Validate(ctx context.Context, password string) (*appstore.ValidationResult, error)
}

// Helper coordinates purchases, restores, product-metadata requests and
// receipt validation against one payment queue. It holds at most one pending
// handler per operation kind and delivers each result at most once.
//
// Construct one Helper per process and hand it to whoever drives it; there
// is no shared global instance.
type Helper struct {
	queue     PaymentQueue
	catalog   ProductCatalog
	validator ReceiptValidator

	mu sync.Mutex

	productsHandler ProductsRequestHandler
	productsCancel  context.CancelFunc
	productsGen     uint64

	purchaseHandler PurchaseHandler
	restoreHandler  RestoreHandler

	observing bool
	stopLoop  context.CancelFunc
	loopDone  chan struct{}
}

// NewHelper constructs a Helper. It does not start consuming queue events;
// call Start.
func NewHelper(queue PaymentQueue, catalog ProductCatalog, validator ReceiptValidator) *Helper {
	return &Helper{
		queue:     queue,
		catalog:   catalog,
		validator: validator,
	}
}

// Start attaches the helper to its payment queue and begins consuming
// events on a single goroutine. Calling Start while already attached is a
// no-op.
func (h *Helper) Start(ctx context.Context) {
	h.mu.Lock()
	if h.observing {
		h.mu.Unlock()
		return
	}
	h.observing = true
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	h.stopLoop = cancel
	h.loopDone = done
	h.mu.Unlock()

	go h.loop(loopCtx, done)
}

// Stop detaches the helper from the payment queue and waits for the event
// loop to exit, so a subsequent Start re-attaches deterministically. Calling
// Stop while not attached is a no-op.
func (h *Helper) Stop() {
	h.mu.Lock()
	if !h.observing {
		h.mu.Unlock()
		return
	}
	h.observing = false
	stop := h.stopLoop
	done := h.loopDone
	h.stopLoop = nil
	h.loopDone = nil
	h.mu.Unlock()

	stop()
	<-done
}

// loop serializes every queue callback onto one control flow. All pending
// handler slots are mutated either here or at call start, never elsewhere.
func (h *Helper) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		h.mu.Lock()
		// When the loop dies on its own (parent context canceled or the
		// queue closed its stream), mark the helper detached so Start can
		// attach again. After Stop these fields are already cleared.
		if h.loopDone == done {
			h.observing = false
			h.stopLoop = nil
			h.loopDone = nil
		}
		h.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-h.queue.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case EventTransactionsUpdated:
				h.handleTransactions(ev.Transactions)
			case EventRestoreCompleted:
				h.completeRestore(ev.Err)
			}
		}
	}
}

// RequestProducts asks the store for metadata on the given identifiers and
// delivers the outcome to handler exactly once. Starting a new request
// supersedes any in-flight one: the superseded request's handler never
// fires.
func (h *Helper) RequestProducts(ctx context.Context, ids models.ProductIdentifierSet, handler ProductsRequestHandler) {
	h.mu.Lock()
	if h.productsCancel != nil {
		h.productsCancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	h.productsHandler = handler
	h.productsCancel = cancel
	h.productsGen++
	gen := h.productsGen
	h.mu.Unlock()

	go func() {
		defer cancel()
		resp, err := h.catalog.RequestProducts(reqCtx, ids)

		h.mu.Lock()
		if gen != h.productsGen {
			// Superseded while in flight; suppress the callback.
			h.mu.Unlock()
			return
		}
		fn := h.productsHandler
		h.productsHandler = nil
		h.productsCancel = nil
		h.mu.Unlock()

		if fn != nil {
			fn(resp, err)
		}
	}()
}

// Purchase starts a purchase for the given product. The handler fires once
// the queue reports the transaction purchased or failed. Callers must not
// start a second purchase while one is pending.
func (h *Helper) Purchase(productID models.ProductIdentifier, handler PurchaseHandler) {
	h.mu.Lock()
	h.purchaseHandler = handler
	h.mu.Unlock()

	log.Debug().Str("product_id", string(productID)).Msg("[IAP] Starting purchase")
	h.queue.AddPayment(productID)
}

// Restore starts a restore pass over previously completed transactions. The
// handler fires once the queue reports the pass finished or failed. Callers
// must not start a second restore while one is pending.
func (h *Helper) Restore(handler RestoreHandler) {
	h.mu.Lock()
	h.restoreHandler = handler
	h.mu.Unlock()

	log.Debug().Msg("[IAP] Starting restore")
	h.queue.RestoreCompletedTransactions()
}

// ValidateReceipt verifies the locally stored receipt. password is the app's
// shared secret, only needed for auto-renewable subscription receipts. The
// call blocks until a verdict or failure; run it from its own goroutine when
// the caller must not wait.
func (h *Helper) ValidateReceipt(ctx context.Context, password string) (*appstore.ValidationResult, error) {
	return h.validator.Validate(ctx, password)
}

// handleTransactions routes one queue-delivered batch, in order.
func (h *Helper) handleTransactions(transactions []*Transaction) {
	for _, tx := range transactions {
		switch tx.State {
		case StatePurchased:
			h.completePurchase(tx)
		case StateRestored:
			// Collected in aggregate on restore completion.
			h.finishTransaction(tx)
		case StateFailed:
			h.failTransaction(tx)
		case StatePurchasing, StateDeferred:
			// Still in flight; the queue redelivers on the next change.
		}
	}
}

func (h *Helper) completePurchase(tx *Transaction) {
	h.mu.Lock()
	fn := h.purchaseHandler
	h.purchaseHandler = nil
	h.mu.Unlock()

	if fn != nil {
		fn(tx.Payment.ProductIdentifier, tx.Err)
	}
	h.finishTransaction(tx)
}

// failTransaction delivers the failure to both the purchase and the restore
// slot: the queue does not say which call path originated the transaction,
// so whichever handler is currently set receives it.
func (h *Helper) failTransaction(tx *Transaction) {
	h.mu.Lock()
	purchaseFn := h.purchaseHandler
	restoreFn := h.restoreHandler
	h.purchaseHandler = nil
	h.restoreHandler = nil
	h.mu.Unlock()

	if purchaseFn != nil {
		purchaseFn("", tx.Err)
	}
	if restoreFn != nil {
		restoreFn(models.ProductIdentifierSet{}, tx.Err)
	}
	h.finishTransaction(tx)
}

// completeRestore collects the restored product identifiers from the queue
// snapshot and delivers them to the pending restore handler. Only
// transactions carrying an original-transaction back-reference count as
// restorations; everything in the snapshot is finished regardless.
func (h *Helper) completeRestore(restoreErr error) {
	restored := models.ProductIdentifierSet{}
	for _, tx := range h.queue.Transactions() {
		if tx.Original != nil {
			restored.Add(tx.Original.Payment.ProductIdentifier)
		}
		h.finishTransaction(tx)
	}

	h.mu.Lock()
	fn := h.restoreHandler
	h.restoreHandler = nil
	h.mu.Unlock()

	log.Debug().Int("restored", len(restored)).Err(restoreErr).Msg("[IAP] Restore completed")
	if fn != nil {
		fn(restored, restoreErr)
	}
}

// finishTransaction acknowledges a transaction back to the queue, but only
// in a terminal state; purchasing and deferred transactions are left for
// redelivery.
func (h *Helper) finishTransaction(tx *Transaction) {
	if tx.State.Terminal() {
		h.queue.FinishTransaction(tx)
	}
}
