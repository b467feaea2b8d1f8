package payment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ebook-pix/internal/payment"
)

func webhookRequest(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestWebhookIgnoresOtherActions(t *testing.T) {
	f := newFixture(t)
	wh := payment.Webhook{Svc: f.svc}

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("/webhook", `{"action":"payment.created","data":{"id":"1"}}`))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true,"message":"Notificação recebida"}`, rr.Body.String())
	_, gets := f.mp.calls()
	require.Zero(t, gets)
}

func TestWebhookDeliversOnceWithNumericID(t *testing.T) {
	f := newFixture(t)
	wh := payment.Webhook{Svc: f.svc}
	checkout, err := f.svc.CreatePayment(context.Background(), "buyer@example.com")
	require.NoError(t, err)
	f.mp.approve(checkout.PaymentID)

	body := `{"action":"payment.updated","data":{"id":` + checkout.PaymentID + `}}`
	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("/webhook", body))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true,"message":"E-book enviado com sucesso"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("/webhook", body))
	require.JSONEq(t, `{"success":true,"message":"Notificação recebida"}`, rr.Body.String())
	require.Equal(t, []string{"buyer@example.com"}, f.notifier.recipients())
}

func TestWebhookMissingID(t *testing.T) {
	f := newFixture(t)
	wh := payment.Webhook{Svc: f.svc}

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("/webhook", `{"action":"payment.updated","data":{}}`))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "ID de pagamento não encontrado")
}

func TestWebhookFallsBackToQueryID(t *testing.T) {
	f := newFixture(t)
	f.mp.setPayment("555", remotePayment{Status: "pending"})
	wh := payment.Webhook{Svc: f.svc}

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("/webhook?data.id=555&type=payment", `{"action":"payment.updated"}`))
	require.Equal(t, http.StatusOK, rr.Code)
	_, gets := f.mp.calls()
	require.Equal(t, 1, gets)
}

func TestWebhookInvalidJSON(t *testing.T) {
	f := newFixture(t)
	wh := payment.Webhook{Svc: f.svc}

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("/webhook", `{"action":`))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhookSignature(t *testing.T) {
	f := newFixture(t)
	f.mp.setPayment("321", remotePayment{Status: "pending"})
	wh := payment.Webhook{Svc: f.svc, Secret: "s3cret"}
	body := `{"action":"payment.updated","data":{"id":"321"}}`

	req := webhookRequest("/webhook", body)
	req.Header.Set("x-request-id", "req-1")
	req.Header.Set("x-signature", "ts=1704908010,v1="+payment.Sign("s3cret", "req-1", "321", "1704908010"))
	rr := httptest.NewRecorder()
	wh.Handle(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	tampered := webhookRequest("/webhook", `{"action":"payment.updated","data":{"id":"322"}}`)
	tampered.Header.Set("x-request-id", "req-1")
	tampered.Header.Set("x-signature", "ts=1704908010,v1="+payment.Sign("s3cret", "req-1", "321", "1704908010"))
	rr = httptest.NewRecorder()
	wh.Handle(rr, tampered)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	unsigned := webhookRequest("/webhook", body)
	rr = httptest.NewRecorder()
	wh.Handle(rr, unsigned)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	_, gets := f.mp.calls()
	require.Equal(t, 1, gets)
}

func TestVerifySignatureRejectsGarbage(t *testing.T) {
	require.ErrorIs(t, payment.VerifySignature("k", "ts=1,v1=zz", "", "1"), payment.ErrInvalidSignature)
	require.ErrorIs(t, payment.VerifySignature("k", "", "", "1"), payment.ErrInvalidSignature)
	require.NoError(t, payment.VerifySignature("k", "ts=9, v1="+payment.Sign("k", "", "AbC", "9"), "", "AbC"))
}

func TestWebhookReplayGuardRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	f.mp.setPayment("900", remotePayment{Status: payment.StatusApproved})
	wh := payment.Webhook{Svc: f.svc, Replay: payment.RedisReplayGuard{Client: client}, ReplayTTL: time.Minute}
	body := `{"action":"payment.updated","data":{"id":"900"}}`

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		wh.Handle(rr, webhookRequest("/webhook", body))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	_, gets := f.mp.calls()
	require.Equal(t, 1, gets)

	mr.FastForward(2 * time.Minute)
	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("/webhook", body))
	_, gets = f.mp.calls()
	require.Equal(t, 2, gets)
}

func TestWebhookReplayKeyReleasedOnFailure(t *testing.T) {
	f := newFixture(t)
	f.mp.getStatus = http.StatusInternalServerError
	f.mp.getBody = `{"message":"internal"}`
	wh := payment.Webhook{Svc: f.svc, Replay: payment.NewMemoryReplayGuard(), ReplayTTL: time.Minute}
	body := `{"action":"payment.updated","data":{"id":"901"}}`

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("/webhook", body))
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	f.mp.mu.Lock()
	f.mp.getStatus = 0
	f.mp.mu.Unlock()
	f.mp.setPayment("901", remotePayment{Status: "pending"})

	rr = httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("/webhook", body))
	require.Equal(t, http.StatusOK, rr.Code)
	_, gets := f.mp.calls()
	require.Equal(t, 2, gets)
}

func TestWebhookReplayKeyReleasedWhilePending(t *testing.T) {
	f := newFixture(t)
	wh := payment.Webhook{Svc: f.svc, Replay: payment.NewMemoryReplayGuard(), ReplayTTL: 10 * time.Minute}
	checkout, err := f.svc.CreatePayment(context.Background(), "buyer@example.com")
	require.NoError(t, err)
	body := `{"action":"payment.updated","data":{"id":"` + checkout.PaymentID + `"}}`

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("/webhook", body))
	require.JSONEq(t, `{"success":true,"message":"Notificação recebida"}`, rr.Body.String())
	require.Empty(t, f.notifier.recipients())

	f.mp.approve(checkout.PaymentID)
	rr = httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("/webhook", body))
	require.JSONEq(t, `{"success":true,"message":"E-book enviado com sucesso"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	wh.Handle(rr, webhookRequest("/webhook", body))
	require.JSONEq(t, `{"success":true,"message":"Notificação recebida"}`, rr.Body.String())
	_, gets := f.mp.calls()
	require.Equal(t, 2, gets)
	require.Equal(t, []string{"buyer@example.com"}, f.notifier.recipients())
}
