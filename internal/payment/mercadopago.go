package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/ebook-pix/internal/resilience"
)

// DefaultMercadoPagoURL is the production API host.
const DefaultMercadoPagoURL = "https://api.mercadopago.com"

const maxProviderBody = 1 << 20

// MercadoPago talks to the Mercado Pago payments API.
type MercadoPago struct {
	AccessToken string
	BaseURL     string
	HTTP        resilience.HTTPClient
	// Timeout bounds each call including reading the response body.
	Timeout time.Duration
	// NewKey produces the X-Idempotency-Key of each creation call.
	NewKey func() string
}

// MercadoPagoConfig holds the knobs for NewMercadoPago.
type MercadoPagoConfig struct {
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
	Breaker     *resilience.Breaker
}

// NewMercadoPago builds a client whose outbound requests are traced.
func NewMercadoPago(cfg MercadoPagoConfig) *MercadoPago {
	return &MercadoPago{
		AccessToken: cfg.AccessToken,
		BaseURL:     cfg.BaseURL,
		HTTP: resilience.HTTPClient{
			Client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker: cfg.Breaker,
		},
		Timeout: cfg.Timeout,
		NewKey:  uuid.NewString,
	}
}

type mpCreateRequest struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Description       string      `json:"description"`
	PaymentMethodID   string      `json:"payment_method_id"`
	Payer             mpPayer     `json:"payer"`
}

type mpPayer struct {
	Email string `json:"email"`
}

type mpPayment struct {
	ID                 flexID  `json:"id"`
	Status             string  `json:"status"`
	Payer              mpPayer `json:"payer"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// CreatePayment opens a payment with a fresh idempotency key. Only 201 counts as success.
func (m *MercadoPago) CreatePayment(ctx context.Context, req ChargeRequest) (Charge, error) {
	ctx, span := otel.Tracer("payment.MercadoPago").Start(ctx, "MercadoPago.CreatePayment")
	defer span.End()

	key := m.newKey()
	span.SetAttributes(attribute.String("payment.method", req.Method))

	body, err := json.Marshal(mpCreateRequest{
		TransactionAmount: json.Number(req.Amount.String()),
		Description:       req.Description,
		PaymentMethodID:   req.Method,
		Payer:             mpPayer{Email: req.PayerEmail},
	})
	if err != nil {
		return Charge{}, fmt.Errorf("mercadopago: encode request: %w", err)
	}
	status, respBody, err := m.do(ctx, http.MethodPost, "/v1/payments", body, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return Charge{}, fmt.Errorf("mercadopago: create payment: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status != http.StatusCreated {
		span.SetStatus(codes.Error, "provider rejected")
		return Charge{}, &ProviderError{Op: "create payment", StatusCode: status, Body: respBody}
	}
	var out mpPayment
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Charge{}, fmt.Errorf("mercadopago: decode payment: %w", err)
	}
	if out.ID == "" {
		return Charge{}, errors.New("mercadopago: payment id missing from response")
	}
	span.SetAttributes(attribute.String("payment.id", string(out.ID)))
	return Charge{
		PaymentID:      string(out.ID),
		Status:         out.Status,
		QRCodeBase64:   out.PointOfInteraction.TransactionData.QRCodeBase64,
		QRCode:         out.PointOfInteraction.TransactionData.QRCode,
		IdempotencyKey: key,
	}, nil
}

// GetPayment fetches the current state of a payment. Only 200 counts as success.
func (m *MercadoPago) GetPayment(ctx context.Context, paymentID string) (PaymentInfo, error) {
	ctx, span := otel.Tracer("payment.MercadoPago").Start(ctx, "MercadoPago.GetPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	status, respBody, err := m.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return PaymentInfo{}, fmt.Errorf("mercadopago: get payment: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status != http.StatusOK {
		span.SetStatus(codes.Error, "provider rejected")
		return PaymentInfo{}, &ProviderError{Op: "get payment", StatusCode: status, Body: respBody}
	}
	var out mpPayment
	if err := json.Unmarshal(respBody, &out); err != nil {
		return PaymentInfo{}, fmt.Errorf("mercadopago: decode payment: %w", err)
	}
	id := string(out.ID)
	if id == "" {
		id = paymentID
	}
	return PaymentInfo{PaymentID: id, Status: out.Status, PayerEmail: strings.TrimSpace(out.Payer.Email)}, nil
}

func (m *MercadoPago) do(ctx context.Context, method, path string, body []byte, idempotencyKey string) (int, []byte, error) {
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL()+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}
	client := m.HTTP
	if client.Client == nil {
		client.Client = http.DefaultClient
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func (m *MercadoPago) baseURL() string {
	base := strings.TrimRight(strings.TrimSpace(m.BaseURL), "/")
	if base == "" {
		return DefaultMercadoPagoURL
	}
	return base
}

func (m *MercadoPago) newKey() string {
	if m.NewKey != nil {
		return m.NewKey()
	}
	return uuid.NewString()
}
