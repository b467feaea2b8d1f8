// Package ebook describes the product sold by the storefront and provisions its deliverable.
package ebook

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultTitle    = "As 50 IAs Mais Poderosas do Mundo (2025)"
	DefaultFileName = "As-50-IAs-Mais-Poderosas-do-Mundo-2025.pdf"
	DefaultPath     = "static/" + DefaultFileName
	DefaultPrice    = "19.90"
	DefaultMethod   = "pix"
)

// Product is the single item on sale.
type Product struct {
	Title    string
	Price    decimal.Decimal
	Method   string
	FilePath string
	FileName string
}

// DefaultProduct returns the catalogue entry used when nothing is configured.
func DefaultProduct() Product {
	return Product{
		Title:    DefaultTitle,
		Price:    decimal.RequireFromString(DefaultPrice),
		Method:   DefaultMethod,
		FilePath: DefaultPath,
		FileName: DefaultFileName,
	}
}

// Description is the text sent to the payment provider.
func (p Product) Description() string {
	return "E-book: " + p.Title
}

// PriceLabel renders the price the way Brazilian shoppers read it, e.g. "R$ 19,90".
func (p Product) PriceLabel() string {
	return "R$ " + strings.Replace(p.Price.StringFixed(2), ".", ",", 1)
}

// AttachmentName is the filename shown to the buyer in the email.
func (p Product) AttachmentName() string {
	if strings.TrimSpace(p.FileName) != "" {
		return p.FileName
	}
	return DefaultFileName
}
