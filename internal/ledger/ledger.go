// Package ledger tracks the payments this storefront has initiated and
// whether their deliverable has been released.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no order is recorded for a payment identifier.
var ErrNotFound = errors.New("ledger: order not found")

var errEmptyID = errors.New("ledger: payment id is required")

// Status is the fulfilment state of an order. It only ever moves forward.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
)

// Order is the record kept for a single payment attempt.
type Order struct {
	PaymentID      string    `json:"paymentId"`
	Email          string    `json:"email"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	IdempotencyKey string    `json:"idempotencyKey"`
}

// Store abstracts where orders live so reconciliation does not depend on the backend.
type Store interface {
	// Put records a new pending order. An existing record for the same id is replaced.
	Put(ctx context.Context, paymentID, email, idempotencyKey string) error
	// Get returns the order or ErrNotFound.
	Get(ctx context.Context, paymentID string) (Order, error)
	// MarkApproved moves a pending order to approved in a single step and reports
	// whether this call performed the transition.
	MarkApproved(ctx context.Context, paymentID string) (bool, error)
}
