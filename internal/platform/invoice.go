package platform

import (
	"fmt"
	"strings"
)

// InvoiceSlug extracts the invoice slug from a payment link like `https://t.me/$AbCd`.
func InvoiceSlug(paymentUrl string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(paymentUrl), "/")
	idx := strings.LastIndex(trimmed, "/")
	slug := strings.TrimLeft(trimmed[idx+1:], "$")
	if slug == "" {
		return "", fmt.Errorf("no invoice slug in payment url %q", paymentUrl)
	}
	return slug, nil
}
