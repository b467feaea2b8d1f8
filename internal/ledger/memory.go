package ledger

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is a process-local Store. Records are lost on restart.
type Memory struct {
	mu     sync.Mutex
	orders map[string]*Order
	now    func() time.Time
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		orders: make(map[string]*Order),
		now:    time.Now,
	}
}

// WithClock overrides the timestamp source, mainly for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Memory) Put(_ context.Context, paymentID, email, idempotencyKey string) error {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return errEmptyID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[paymentID] = &Order{
		PaymentID:      paymentID,
		Email:          email,
		Status:         StatusPending,
		CreatedAt:      m.now(),
		IdempotencyKey: idempotencyKey,
	}
	return nil
}

func (m *Memory) Get(_ context.Context, paymentID string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[strings.TrimSpace(paymentID)]
	if !ok {
		return Order{}, ErrNotFound
	}
	return *o, nil
}

func (m *Memory) MarkApproved(_ context.Context, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[strings.TrimSpace(paymentID)]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status == StatusApproved {
		return false, nil
	}
	o.Status = StatusApproved
	return true, nil
}

// Len reports the number of recorded orders.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}
