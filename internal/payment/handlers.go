package payment

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/ebook-pix/internal/common"
)

// PaymentPage is the data rendered after a charge is opened.
type PaymentPage struct {
	Checkout
	Title      string
	PriceLabel string
}

// PageRenderer writes the HTML payment page.
type PageRenderer interface {
	RenderPayment(w io.Writer, page PaymentPage) error
}

// Handler exposes the buyer-facing payment endpoints.
type Handler struct {
	Svc      *Service
	Pages    PageRenderer
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type createForm struct {
	Email string `validate:"required"`
}

type statusResp struct {
	Status string `json:"status"`
}

// Create opens a charge for the submitted email and renders the QR code page.
// JSON clients (Accept: application/json) receive the checkout as JSON.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	if err := r.ParseForm(); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid form body", nil)
		return
	}
	form := createForm{Email: strings.TrimSpace(r.PostFormValue("email"))}
	if err := h.validator().Struct(form); err != nil {
		common.WriteError(w, common.BadRequest(msgEmailRequired))
		return
	}
	checkout, err := h.Svc.CreatePayment(r.Context(), form.Email)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Pages == nil || wantsJSON(r) {
		common.JSON(w, http.StatusOK, checkout)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := PaymentPage{
		Checkout:   checkout,
		Title:      h.Svc.Product.Title,
		PriceLabel: h.Svc.Product.PriceLabel(),
	}
	if err := h.Pages.RenderPayment(w, page); err != nil {
		h.Logger.Error().Err(err).Str("payment_id", checkout.PaymentID).Msg("render payment page")
	}
}

// Check reconciles the payment named in the path and reports its provider status.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	res, err := h.Svc.Reconcile(r.Context(), chi.URLParam(r, "paymentID"), SourcePoll)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, statusResp{Status: res.Status})
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return defaultValidate
}

var defaultValidate = validator.New()

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
