package payment_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/noah-isme/ebook-pix/internal/ebook"
	"github.com/noah-isme/ebook-pix/internal/ledger"
	"github.com/noah-isme/ebook-pix/internal/payment"
)

type remotePayment struct {
	Status     string
	PayerEmail string
}

// fakeMercadoPago mimics the subset of the payments API the gateway uses.
type fakeMercadoPago struct {
	mu       sync.Mutex
	nextID   int
	payments map[string]remotePayment
	keys     []string
	bodies   []map[string]any
	auth     []string
	gets     int

	createStatus int
	createBody   string
	getStatus    int
	getBody      string
}

func newFakeMercadoPago(t *testing.T) (*fakeMercadoPago, *httptest.Server) {
	t.Helper()
	f := &fakeMercadoPago{nextID: 1000, payments: map[string]remotePayment{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeMercadoPago) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/payments":
		f.keys = append(f.keys, r.Header.Get("X-Idempotency-Key"))
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		f.bodies = append(f.bodies, body)
		if f.createStatus != 0 {
			w.WriteHeader(f.createStatus)
			_, _ = io.WriteString(w, f.createBody)
			return
		}
		f.nextID++
		id := strconv.Itoa(f.nextID)
		email := ""
		if payer, ok := body["payer"].(map[string]any); ok {
			email, _ = payer["email"].(string)
		}
		f.payments[id] = remotePayment{Status: "pending", PayerEmail: email}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":`+id+`,"status":"pending","point_of_interaction":{"transaction_data":{"qr_code_base64":"iVBORw0KGgo=","qr_code":"00020126pix`+id+`"}}}`)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/payments/"):
		f.gets++
		if f.getStatus != 0 {
			w.WriteHeader(f.getStatus)
			_, _ = io.WriteString(w, f.getBody)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/v1/payments/")
		p, ok := f.payments[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"Payment not found","status":404}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     json.Number(id),
			"status": p.Status,
			"payer":  map[string]any{"email": p.PayerEmail},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeMercadoPago) setPayment(id string, p remotePayment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[id] = p
}

func (f *fakeMercadoPago) approve(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payments[id]
	p.Status = payment.StatusApproved
	f.payments[id] = p
}

func (f *fakeMercadoPago) calls() (creates, gets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys), f.gets
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *recordingNotifier) SendEbook(_ context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, email)
	return n.err
}

func (n *recordingNotifier) recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type fixture struct {
	mp       *fakeMercadoPago
	gateway  *payment.MercadoPago
	ledger   *ledger.Memory
	notifier *recordingNotifier
	svc      *payment.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mp, srv := newFakeMercadoPago(t)
	gw := payment.NewMercadoPago(payment.MercadoPagoConfig{AccessToken: "TEST-token", BaseURL: srv.URL})
	store := ledger.NewMemory()
	notifier := &recordingNotifier{}
	svc := &payment.Service{
		Gateway:  gw,
		Ledger:   store,
		Notifier: notifier,
		Product:  ebook.DefaultProduct(),
		Logger:   zerolog.Nop(),
	}
	return fixture{mp: mp, gateway: gw, ledger: store, notifier: notifier, svc: svc}
}
