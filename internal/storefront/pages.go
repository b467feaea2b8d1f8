// Package storefront renders the buyer-facing HTML pages and their assets.
package storefront

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/ebook-pix/internal/ebook"
	"github.com/noah-isme/ebook-pix/internal/payment"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Pages holds the parsed templates for the product on sale.
type Pages struct {
	Product ebook.Product
	Logger  zerolog.Logger
	tpl     *template.Template
}

type landingView struct {
	Title      string
	PriceLabel string
}

// New parses the embedded templates.
func New(product ebook.Product, logger zerolog.Logger) (*Pages, error) {
	tpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("storefront: parse templates: %w", err)
	}
	return &Pages{Product: product, Logger: logger, tpl: tpl}, nil
}

// Index serves the landing page with the purchase form.
func (p *Pages) Index(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	view := landingView{Title: p.Product.Title, PriceLabel: p.Product.PriceLabel()}
	if err := p.tpl.ExecuteTemplate(&buf, "index.html", view); err != nil {
		p.Logger.Error().Err(err).Msg("render landing page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// RenderPayment writes the QR code page for an opened charge.
func (p *Pages) RenderPayment(w io.Writer, page payment.PaymentPage) error {
	var buf bytes.Buffer
	view := struct {
		payment.PaymentPage
		QRImage template.URL
	}{PaymentPage: page, QRImage: template.URL(page.QRCodeImage)}
	if err := p.tpl.ExecuteTemplate(&buf, "payment.html", view); err != nil {
		return fmt.Errorf("storefront: render payment: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded assets; mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
