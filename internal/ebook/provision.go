package ebook

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
)

// EnsurePlaceholder writes a one-page demo PDF at path when no file exists there.
// It reports whether a file was created. Existing files are never touched.
func EnsurePlaceholder(path string, p Product) (bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return false, errors.New("ebook: path is required")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("ebook: stat %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("ebook: create dir: %w", err)
		}
	}

	title, edition := splitTitle(p.Title)

	pdf := fpdf.New("P", "pt", "Letter", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 24)
	pdf.Text(72, 42, tr(title))
	pdf.SetFont("Helvetica", "B", 20)
	pdf.Text(72, 72, tr(edition))
	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(72, 112, tr("Este é um e-book de demonstração."))
	if err := pdf.OutputFileAndClose(path); err != nil {
		_ = os.Remove(path)
		return false, fmt.Errorf("ebook: write placeholder: %w", err)
	}
	return true, nil
}

// splitTitle turns "Name (2025)" into ("Name", "Edição 2025").
func splitTitle(full string) (string, string) {
	full = strings.TrimSpace(full)
	open := strings.LastIndex(full, "(")
	if open <= 0 || !strings.HasSuffix(full, ")") {
		return full, ""
	}
	year := strings.TrimSpace(full[open+1 : len(full)-1])
	return strings.TrimSpace(full[:open]), "Edição " + year
}
