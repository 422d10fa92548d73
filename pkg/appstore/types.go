package appstore

import (
	"encoding/json"

	"github.com/GTDGit/iap_core/internal/models"
)

// verifyRequest is the JSON body posted to the verification endpoint.
type verifyRequest struct {
	ReceiptData string `json:"receipt-data"`
	Password    string `json:"password,omitempty"`
}

// ReceiptInfo is one entry of the latest_receipt_info array. Dates use the
// legacy "yyyy-MM-dd HH:mm:ss z" format with the zone written as "Etc/GMT".
type ReceiptInfo struct {
	ProductID        string `json:"product_id"`
	ExpiresDate      string `json:"expires_date,omitempty"`
	CancellationDate string `json:"cancellation_date,omitempty"`
}

// verifyResponse is the subset of the verification response the client
// consumes. Everything else is retained raw in ValidationResult.Raw.
type verifyResponse struct {
	Status            int           `json:"status"`
	LatestReceiptInfo []ReceiptInfo `json:"latest_receipt_info"`
}

// ValidationResult is the outcome of a receipt validation that reached a
// verdict. Transport and malformed-response failures are returned as an
// error instead and carry no status code at all.
type ValidationResult struct {
	// Status is the verification status code (StatusValid, StatusNoReceipt,
	// or a server-reported failure code).
	Status int

	// Products maps each product found in the receipt to its resolved
	// expiration. Nil when the receipt listed no products.
	Products models.ProductExpirationMap

	// Raw is the unmodified response body, nil for StatusNoReceipt.
	Raw json.RawMessage
}
