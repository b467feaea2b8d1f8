package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// StatusApproved is the provider status that releases the deliverable.
const StatusApproved = "approved"

// ChargeRequest carries what the provider needs to open an instant payment.
type ChargeRequest struct {
	Amount      decimal.Decimal
	Description string
	Method      string
	PayerEmail  string
}

// Charge is the provider's answer to a successful creation call.
type Charge struct {
	PaymentID      string
	Status         string
	QRCodeBase64   string
	QRCode         string
	IdempotencyKey string
}

// PaymentInfo is the subset of a provider payment used for reconciliation.
type PaymentInfo struct {
	PaymentID  string
	Status     string
	PayerEmail string
}

// Gateway abstracts the upstream payment provider.
type Gateway interface {
	CreatePayment(ctx context.Context, req ChargeRequest) (Charge, error)
	GetPayment(ctx context.Context, paymentID string) (PaymentInfo, error)
}

// ProviderError is a non-success HTTP answer from the provider. Body is kept verbatim.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: status %d", e.Op, e.StatusCode)
}

// Details returns the body as raw JSON when it is JSON, otherwise as text.
func (e *ProviderError) Details() any {
	trimmed := bytes.TrimSpace(e.Body)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(append([]byte(nil), trimmed...))
	}
	return string(trimmed)
}

// flexID accepts identifiers sent either as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}
