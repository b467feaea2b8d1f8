package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/ebook-pix/internal/common"
	"github.com/noah-isme/ebook-pix/internal/ebook"
	"github.com/noah-isme/ebook-pix/internal/ledger"
	"github.com/noah-isme/ebook-pix/internal/obs"
)

const (
	msgEmailRequired  = "E-mail é obrigatório"
	msgCreateFailed   = "Erro ao criar pagamento"
	msgCheckFailed    = "Erro ao verificar pagamento"
	msgMissingPayment = "ID de pagamento não encontrado"
)

// Source names the entry point that asked for reconciliation.
type Source string

const (
	SourcePoll    Source = "poll"
	SourceWebhook Source = "webhook"
)

// Notifier delivers the e-book to a buyer.
type Notifier interface {
	SendEbook(ctx context.Context, email string) error
}

// Service opens payments and reconciles their status with the ledger.
type Service struct {
	Gateway  Gateway
	Ledger   ledger.Store
	Notifier Notifier
	Product  ebook.Product
	Logger   zerolog.Logger
}

// Checkout is what the buyer needs to pay an opened charge.
type Checkout struct {
	PaymentID      string `json:"payment_id"`
	Email          string `json:"email"`
	QRCodeImage    string `json:"qr_code_base64"`
	QRCode         string `json:"qr_code"`
	IdempotencyKey string `json:"-"`
}

// Result reports what a reconciliation run did.
type Result struct {
	PaymentID string
	Status    string
	// Notified is set when this run handed the e-book to the notifier.
	Notified bool
	// Delivered is set when the notifier reported success.
	Delivered bool
	// Fallback is set when the recipient came from the provider payload.
	Fallback bool
}

// CreatePayment opens a charge for the configured product and records it as pending.
func (s *Service) CreatePayment(ctx context.Context, email string) (Checkout, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Checkout{}, common.BadRequest(msgEmailRequired)
	}
	if s == nil || s.Gateway == nil || s.Ledger == nil {
		return Checkout{}, common.NewAppError("PAYMENT_NOT_CONFIGURED", "payment service unavailable", http.StatusInternalServerError, nil)
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreatePayment")
	defer span.End()

	method := s.Product.Method
	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.method", method),
			attribute.Float64("payment.create.duration_ms", obs.DurationMillis(time.Since(start))),
			attribute.String("payment.create.result", result),
		)
		if obs.PaymentCreateTotal != nil {
			obs.PaymentCreateTotal.WithLabelValues(method, result).Inc()
		}
		if obs.PaymentCreateLatency != nil {
			obs.PaymentCreateLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	charge, err := s.Gateway.CreatePayment(ctx, ChargeRequest{
		Amount:      s.Product.Price,
		Description: s.Product.Description(),
		Method:      method,
		PayerEmail:  email,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create payment")
		result = "rejected"
		var perr *ProviderError
		if !errors.As(err, &perr) {
			result = "unavailable"
		}
		s.Logger.Error().Err(err).Str("payment_method", method).Msg("create payment failed")
		return Checkout{}, providerAppError(msgCreateFailed, err)
	}
	if err := s.Ledger.Put(ctx, charge.PaymentID, email, charge.IdempotencyKey); err != nil {
		span.RecordError(err)
		s.Logger.Error().Err(err).Str("payment_id", charge.PaymentID).Msg("record pending payment")
		return Checkout{}, common.Internal(err)
	}
	result = "success"
	span.SetAttributes(attribute.String("payment.id", charge.PaymentID))
	s.Logger.Info().Str("payment_id", charge.PaymentID).Str("status", charge.Status).Msg("payment created")

	return Checkout{
		PaymentID:      charge.PaymentID,
		Email:          email,
		QRCodeImage:    qrDataURI(charge.QRCodeBase64),
		QRCode:         charge.QRCode,
		IdempotencyKey: charge.IdempotencyKey,
	}, nil
}

// Reconcile asks the provider for the current status and, on approval,
// delivers the e-book at most once per ledger record. The provider status is
// returned whichever branch ran.
func (s *Service) Reconcile(ctx context.Context, paymentID string, source Source) (Result, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Result{}, common.BadRequest(msgMissingPayment)
	}
	if s == nil || s.Gateway == nil || s.Ledger == nil {
		return Result{}, common.NewAppError("PAYMENT_NOT_CONFIGURED", "payment service unavailable", http.StatusInternalServerError, nil)
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID), attribute.String("reconcile.source", string(source)))

	outcome := "error"
	defer func() {
		span.SetAttributes(attribute.String("reconcile.outcome", outcome))
		if obs.ReconcileTotal != nil {
			obs.ReconcileTotal.WithLabelValues(string(source), outcome).Inc()
		}
	}()

	info, err := s.Gateway.GetPayment(ctx, paymentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get payment")
		s.Logger.Warn().Err(err).Str("payment_id", paymentID).Str("source", string(source)).Msg("payment lookup failed")
		return Result{}, providerAppError(msgCheckFailed, err)
	}
	res := Result{PaymentID: paymentID, Status: info.Status}
	if info.Status != StatusApproved {
		outcome = "no_change"
		return res, nil
	}

	order, err := s.Ledger.Get(ctx, paymentID)
	switch {
	case err == nil:
		transitioned, err := s.Ledger.MarkApproved(ctx, paymentID)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			outcome = s.deliverFallback(ctx, &res, info)
		case err != nil:
			outcome = "ledger_error"
			s.Logger.Error().Err(err).Str("payment_id", paymentID).Msg("mark payment approved")
		case !transitioned:
			outcome = "already_fulfilled"
		default:
			outcome = "fulfilled"
			s.deliver(ctx, &res, order.Email, "ledger")
		}
	case errors.Is(err, ledger.ErrNotFound):
		outcome = s.deliverFallback(ctx, &res, info)
	default:
		outcome = "ledger_error"
		s.Logger.Error().Err(err).Str("payment_id", paymentID).Msg("load ledger record")
	}
	return res, nil
}

// deliverFallback sends to the payer email reported by the provider. Nothing is
// persisted, so repeated calls send again.
func (s *Service) deliverFallback(ctx context.Context, res *Result, info PaymentInfo) string {
	if info.PayerEmail == "" {
		s.Logger.Warn().Str("payment_id", res.PaymentID).Msg("approved payment without ledger record or payer email")
		return "no_recipient"
	}
	res.Fallback = true
	s.deliver(ctx, res, info.PayerEmail, "fallback")
	return "fallback"
}

func (s *Service) deliver(ctx context.Context, res *Result, email, path string) {
	if s.Notifier == nil {
		s.Logger.Warn().Str("payment_id", res.PaymentID).Msg("notifier not configured; e-book not sent")
		return
	}
	res.Notified = true
	err := s.Notifier.SendEbook(ctx, email)
	result := "sent"
	if err != nil {
		result = "failed"
		s.Logger.Debug().Err(err).Str("payment_id", res.PaymentID).Str("path", path).Msg("e-book delivery failed")
	} else {
		res.Delivered = true
	}
	if obs.EbookDeliveryTotal != nil {
		obs.EbookDeliveryTotal.WithLabelValues(path, result).Inc()
	}
}

func providerAppError(message string, err error) *common.AppError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		status := perr.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		return common.NewAppError("PROVIDER_ERROR", message, status, err).WithDetails(perr.Details())
	}
	return common.NewAppError("PROVIDER_UNAVAILABLE", err.Error(), http.StatusInternalServerError, err)
}

func qrDataURI(encoded string) string {
	if encoded == "" {
		return ""
	}
	return "data:image/png;base64," + encoded
}
