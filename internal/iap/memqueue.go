package iap

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/iap_core/internal/models"
)

// MemoryQueue is an in-process PaymentQueue used by the CLI and by tests.
// It resolves every purchase immediately: a transaction is delivered once in
// the purchasing state and then redelivered purchased (or failed, when a
// failure has been injected). Restores replay the queue's own purchase
// history as restored transactions with an original back-reference.
//
// Finishing a transaction marks it acknowledged but leaves it visible in
// Transactions() until the next operation starts. The platform queue removes
// finished transactions asynchronously, and the restore flow depends on the
// just-finished restorations still being present when the completion event
// is processed.
type MemoryQueue struct {
	mu           sync.Mutex
	events       chan QueueEvent
	transactions []*Transaction
	finished     map[string]bool
	owned        []models.ProductIdentifier

	purchaseErr error
	restoreErr  error
}

// NewMemoryQueue constructs an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		events:   make(chan QueueEvent, 64),
		finished: make(map[string]bool),
	}
}

// Own seeds the queue's purchase history, as if the products had been bought
// in an earlier session. Restores replay this history.
func (q *MemoryQueue) Own(ids ...models.ProductIdentifier) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.owned = append(q.owned, ids...)
}

// FailPurchasesWith makes every subsequent purchase fail with err. A nil err
// restores normal behavior.
func (q *MemoryQueue) FailPurchasesWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.purchaseErr = err
}

// FailRestoresWith makes every subsequent restore pass fail with err. A nil
// err restores normal behavior.
func (q *MemoryQueue) FailRestoresWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.restoreErr = err
}

// AddPayment starts a purchase for the given product.
func (q *MemoryQueue) AddPayment(productID models.ProductIdentifier) {
	q.mu.Lock()
	q.compactLocked()
	tx := &Transaction{
		ID:      uuid.NewString(),
		State:   StatePurchasing,
		Payment: Payment{ProductIdentifier: productID},
	}
	q.transactions = append(q.transactions, tx)
	failErr := q.purchaseErr
	q.mu.Unlock()

	q.events <- QueueEvent{Type: EventTransactionsUpdated, Transactions: []*Transaction{tx}}

	// Redeliver as a fresh value in the terminal state; the transaction
	// already on the wire must not be mutated.
	resolved := &Transaction{
		ID:      tx.ID,
		Payment: tx.Payment,
	}
	q.mu.Lock()
	if failErr != nil {
		resolved.State = StateFailed
		resolved.Err = failErr
	} else {
		resolved.State = StatePurchased
		q.owned = append(q.owned, productID)
	}
	for i, held := range q.transactions {
		if held.ID == resolved.ID {
			q.transactions[i] = resolved
			break
		}
	}
	q.mu.Unlock()

	log.Debug().
		Str("transaction_id", resolved.ID).
		Str("product_id", string(productID)).
		Str("state", string(resolved.State)).
		Msg("[MEMQUEUE] Purchase resolved")
	q.events <- QueueEvent{Type: EventTransactionsUpdated, Transactions: []*Transaction{resolved}}
}

// RestoreCompletedTransactions replays the purchase history as restored
// transactions, then signals completion.
func (q *MemoryQueue) RestoreCompletedTransactions() {
	q.mu.Lock()
	q.compactLocked()
	restoreErr := q.restoreErr

	var batch []*Transaction
	if restoreErr == nil {
		for _, productID := range q.owned {
			original := &Transaction{
				ID:      uuid.NewString(),
				State:   StatePurchased,
				Payment: Payment{ProductIdentifier: productID},
			}
			tx := &Transaction{
				ID:       uuid.NewString(),
				State:    StateRestored,
				Payment:  Payment{ProductIdentifier: productID},
				Original: original,
			}
			q.transactions = append(q.transactions, tx)
			batch = append(batch, tx)
		}
	}
	q.mu.Unlock()

	if len(batch) > 0 {
		q.events <- QueueEvent{Type: EventTransactionsUpdated, Transactions: batch}
	}
	log.Debug().Int("restored", len(batch)).Err(restoreErr).Msg("[MEMQUEUE] Restore pass finished")
	q.events <- QueueEvent{Type: EventRestoreCompleted, Err: restoreErr}
}

// FinishTransaction marks an acknowledged transaction for removal. Finishing
// a transaction twice, or one the queue does not hold, is harmless.
func (q *MemoryQueue) FinishTransaction(tx *Transaction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.finished[tx.ID] = true
}

// Transactions returns a snapshot of the transactions currently held,
// including finished ones not yet removed.
func (q *MemoryQueue) Transactions() []*Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	snapshot := make([]*Transaction, len(q.transactions))
	copy(snapshot, q.transactions)
	return snapshot
}

// Events returns the queue's event stream.
func (q *MemoryQueue) Events() <-chan QueueEvent {
	return q.events
}

// compactLocked drops finished transactions. Callers hold q.mu.
func (q *MemoryQueue) compactLocked() {
	if len(q.finished) == 0 {
		return
	}
	kept := q.transactions[:0]
	for _, tx := range q.transactions {
		if !q.finished[tx.ID] {
			kept = append(kept, tx)
		}
	}
	q.transactions = kept
	q.finished = make(map[string]bool)
}
