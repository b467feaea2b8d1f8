package storefront_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ebook-pix/internal/ebook"
	"github.com/noah-isme/ebook-pix/internal/payment"
	"github.com/noah-isme/ebook-pix/internal/storefront"
)

func newPages(t *testing.T) *storefront.Pages {
	t.Helper()
	pages, err := storefront.New(ebook.DefaultProduct(), zerolog.Nop())
	require.NoError(t, err)
	return pages
}

func TestIndexShowsForm(t *testing.T) {
	rr := httptest.NewRecorder()
	newPages(t).Index(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	require.Contains(t, body, `action="/criar-pagamento"`)
	require.Contains(t, body, `name="email"`)
	require.Contains(t, body, "R$ 19,90")
}

func TestRenderPaymentKeepsDataURI(t *testing.T) {
	var buf bytes.Buffer
	err := newPages(t).RenderPayment(&buf, payment.PaymentPage{
		Checkout: payment.Checkout{
			PaymentID:   "1001",
			Email:       "buyer@example.com",
			QRCodeImage: "data:image/png;base64,iVBORw0KGgo=",
			QRCode:      "00020126pix",
		},
		Title:      ebook.DefaultTitle,
		PriceLabel: "R$ 19,90",
	})
	require.NoError(t, err)
	out := buf.String()
	require.Contains(t, out, `src="data:image/png;base64,iVBORw0KGgo="`)
	require.Contains(t, out, "00020126pix")
	require.Contains(t, out, `data-payment-id="1001"`)
	require.Contains(t, out, "/check-payment/")
}

func TestStaticServesScript(t *testing.T) {
	rr := httptest.NewRecorder()
	storefront.Static().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/js/main.js", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Processando...")
}
