package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/ebook-pix/internal/common"
	"github.com/noah-isme/ebook-pix/internal/obs"
)

// ActionPaymentUpdated is the only notification action that triggers reconciliation.
const ActionPaymentUpdated = "payment.updated"

const (
	msgEbookSent            = "E-book enviado com sucesso"
	msgNotificationReceived = "Notificação recebida"
	maxWebhookBody          = 64 << 10
)

// ErrInvalidSignature is returned when the x-signature header does not match the payload.
var ErrInvalidSignature = errors.New("payment: invalid webhook signature")

// Webhook handles Mercado Pago notifications.
type Webhook struct {
	Svc *Service
	// Secret enables x-signature verification when set.
	Secret    string
	Replay    ReplayGuard
	ReplayTTL time.Duration
	Validate  *validator.Validate
	Logger    zerolog.Logger
}

type notification struct {
	Action string `json:"action" validate:"omitempty,max=64"`
	Type   string `json:"type"`
	Data   struct {
		ID flexID `json:"id" validate:"max=64"`
	} `json:"data"`
}

type webhookResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Handle reconciles the payment referenced by a payment.updated notification.
// Other actions are acknowledged without contacting the provider.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	result := "error"
	defer func() {
		if obs.PaymentWebhookTotal != nil {
			obs.PaymentWebhookTotal.WithLabelValues(result).Inc()
		}
	}()
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	var note notification
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &note); err != nil {
			result = "invalid"
			common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON payload", nil)
			return
		}
	}
	validate := h.Validate
	if validate == nil {
		validate = defaultValidate
	}
	if err := validate.Struct(note); err != nil {
		result = "invalid"
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "malformed notification", nil)
		return
	}
	if note.Action != ActionPaymentUpdated {
		result = "ignored"
		common.JSON(w, http.StatusOK, webhookResp{Success: true, Message: msgNotificationReceived})
		return
	}
	paymentID := strings.TrimSpace(string(note.Data.ID))
	if paymentID == "" {
		paymentID = strings.TrimSpace(r.URL.Query().Get("data.id"))
	}
	if paymentID == "" {
		result = "invalid"
		common.WriteError(w, common.BadRequest(msgMissingPayment))
		return
	}
	if h.Secret != "" {
		if err := VerifySignature(h.Secret, r.Header.Get("x-signature"), r.Header.Get("x-request-id"), paymentID); err != nil {
			result = "unauthorized"
			h.Logger.Warn().Str("payment_id", paymentID).Msg("webhook signature rejected")
			common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
			return
		}
	}
	replayKey := ""
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := "wh:mercadopago:" + common.Sha256Hex(body)
		fresh, err := h.Replay.Acquire(r.Context(), key, h.ReplayTTL)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !fresh {
			result = "duplicate"
			h.Logger.Info().Str("payment_id", paymentID).Msg("duplicate webhook acknowledged")
			common.JSON(w, http.StatusOK, webhookResp{Success: true, Message: msgNotificationReceived})
			return
		}
		replayKey = key
	}

	res, err := h.Svc.Reconcile(r.Context(), paymentID, SourceWebhook)
	// Only an approved outcome is final; the approval notification repeats
	// the same body as the pending one.
	if replayKey != "" && (err != nil || res.Status != StatusApproved) {
		h.release(r.Context(), replayKey, paymentID)
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}
	result = "processed"
	msg := msgNotificationReceived
	if res.Notified {
		msg = msgEbookSent
	}
	common.JSON(w, http.StatusOK, webhookResp{Success: true, Message: msg})
}

func (h *Webhook) release(ctx context.Context, key, paymentID string) {
	if err := h.Replay.Release(ctx, key); err != nil {
		h.Logger.Warn().Err(err).Str("payment_id", paymentID).Msg("release webhook replay key")
	}
}

// VerifySignature checks a Mercado Pago x-signature header ("ts=...,v1=...")
// against the manifest "id:<id>;request-id:<request id>;ts:<ts>;". Parts whose
// value is absent are left out of the manifest.
func VerifySignature(secret, header, requestID, dataID string) error {
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			ts = strings.TrimSpace(v)
		case "v1":
			v1 = strings.TrimSpace(v)
		}
	}
	if ts == "" || v1 == "" {
		return ErrInvalidSignature
	}
	expected, err := hex.DecodeString(v1)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signatureManifest(dataID, requestID, ts)))
	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces the v1 value for the given manifest parts.
func Sign(secret, requestID, dataID, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signatureManifest(dataID, requestID, ts)))
	return hex.EncodeToString(mac.Sum(nil))
}

func signatureManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}
