package appstore

import (
	"strings"
	"time"

	"github.com/GTDGit/iap_core/internal/models"
)

// receiptDateLayout matches the legacy date format used in
// latest_receipt_info, e.g. "2016-08-24 09:42:11 Etc/GMT" once the "Etc/"
// prefix has been stripped.
const receiptDateLayout = "2006-01-02 15:04:05 MST"

// ParseReceiptInfo folds the latest_receipt_info records into one expiration
// per product:
//
//   - among multiple expiration dates for a product, the latest wins;
//   - cancellation dates accumulate separately under the same rule;
//   - a product whose cancellation date is at or after its retained
//     expiration is pinned to the epoch, permanently inactive.
//
// Records without a product_id and dates that fail to parse are skipped.
// Returns nil when no product retained an expiration.
func ParseReceiptInfo(records []ReceiptInfo) models.ProductExpirationMap {
	products := models.ProductExpirationMap{}
	cancelled := map[models.ProductIdentifier]time.Time{}

	for _, r := range records {
		if r.ProductID == "" {
			continue
		}
		id := models.ProductIdentifier(r.ProductID)

		if t, ok := parseReceiptDate(r.ExpiresDate); ok {
			if cur, exists := products[id]; !exists || t.After(cur) {
				products[id] = t
			}
		}
		if t, ok := parseReceiptDate(r.CancellationDate); ok {
			if cur, exists := cancelled[id]; !exists || t.After(cur) {
				cancelled[id] = t
			}
		}
	}

	// A cancellation at or after the retained expiration marks the product
	// as never active.
	for id, cancelledAt := range cancelled {
		if expiresAt, ok := products[id]; ok && !cancelledAt.Before(expiresAt) {
			products[id] = time.Unix(0, 0).UTC()
		}
	}

	if len(products) == 0 {
		return nil
	}
	return products
}

// parseReceiptDate parses a receipt date string. The literal zone "Etc/GMT"
// is normalized to "GMT" first, since the reference layout cannot express
// the Etc/ prefix. Unparsable input is treated as absent.
func parseReceiptDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	s = strings.ReplaceAll(s, "Etc/GMT", "GMT")
	t, err := time.Parse(receiptDateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
