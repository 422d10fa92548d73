package iap

import (
	"errors"

	"github.com/GTDGit/iap_core/internal/models"
)

// TransactionState is the lifecycle state the payment queue reports for a
// transaction.
type TransactionState string

const (
	StatePurchasing TransactionState = "purchasing"
	StatePurchased  TransactionState = "purchased"
	StateFailed     TransactionState = "failed"
	StateRestored   TransactionState = "restored"
	StateDeferred   TransactionState = "deferred"
)

// Terminal reports whether the state allows the transaction to be finished.
// Purchasing and deferred transactions stay on the queue and are redelivered
// once they change state.
func (s TransactionState) Terminal() bool {
	return s == StatePurchased || s == StateRestored || s == StateFailed
}

// Payment names the product a transaction pays for.
type Payment struct {
	ProductIdentifier models.ProductIdentifier
}

// Transaction is the queue's record of one purchase attempt. The core never
// creates or mutates transactions; it only reacts to them and acknowledges
// the terminal ones back to the queue.
type Transaction struct {
	ID      string
	State   TransactionState
	Payment Payment

	// Original points back to the first transaction for this product when
	// this one was produced by a restore; nil for fresh purchases.
	Original *Transaction

	// Err carries the queue-reported failure for StateFailed transactions.
	Err error
}

// QueueEventType names the two event shapes a payment queue emits.
type QueueEventType string

const (
	// EventTransactionsUpdated carries a batch of transactions whose state
	// changed, in queue order.
	EventTransactionsUpdated QueueEventType = "transactions.updated"
	// EventRestoreCompleted signals that a restore pass finished, with Err
	// set when it failed.
	EventRestoreCompleted QueueEventType = "restore.completed"
)

// QueueEvent is one message from the payment queue.
type QueueEvent struct {
	Type         QueueEventType
	Transactions []*Transaction // EventTransactionsUpdated only
	Err          error          // EventRestoreCompleted only, nil on success
}

// PaymentQueue is the boundary to the platform purchase queue.
type PaymentQueue interface {
	// AddPayment starts a purchase for the given product.
	AddPayment(productID models.ProductIdentifier)
	// RestoreCompletedTransactions starts a restore pass.
	RestoreCompletedTransactions()
	// FinishTransaction acknowledges a terminal transaction so the queue
	// stops redelivering it.
	FinishTransaction(tx *Transaction)
	// Transactions returns a snapshot of the transactions currently held by
	// the queue.
	Transactions() []*Transaction
	// Events is the stream the queue delivers its callbacks on.
	Events() <-chan QueueEvent
}

// Queue-reported failure sentinels. Callers are expected to treat
// ErrPaymentCancelled as a silent no-op; everything else is rendered as its
// plain description.
var (
	ErrPaymentCancelled     = errors.New("iap: payment cancelled by user")
	ErrNoPurchasesToRestore = errors.New("iap: no previous purchases to restore")
)
