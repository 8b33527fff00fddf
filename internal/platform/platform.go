// Package platform describes what the core needs from the messaging platform the catalog
// is embedded in (a telegram mini-app): web-app sessions and Stars payments.
package platform

import (
	"context"
	"errors"
)

// ErrInsufficientBalance is returned by Payer.PayStars when the account cannot cover the invoice.
var ErrInsufficientBalance = errors.New("insufficient stars balance")

// WebAppSource produces the signed init data of the catalog's mini-app.
type WebAppSource interface {
	// WebAppPayload returns the `tgWebAppData` value, percent-decoded exactly once.
	WebAppPayload(ctx context.Context) (string, error)
}

// PaymentForm is a fetched invoice that can be paid.
type PaymentForm struct {
	ID    int64
	Slug  string
	Title string
	// Amount in Stars, 0 when the platform did not report it.
	Amount int64
}

// Payer settles invoices with the account's Stars balance.
type Payer interface {
	PaymentForm(ctx context.Context, slug string) (PaymentForm, error)
	PayStars(ctx context.Context, form PaymentForm) error
	// SendSelf posts a text message to the account's own Saved Messages.
	SendSelf(ctx context.Context, text string) error
}

// Platform is everything the commands need from one authorized session.
type Platform interface {
	WebAppSource
	Payer
}
