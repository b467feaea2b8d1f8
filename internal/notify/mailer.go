// Package notify delivers the purchased e-book to buyers by email.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/noah-isme/ebook-pix/internal/ebook"
)

// ErrDisabled is returned when no sender credentials are configured.
var ErrDisabled = errors.New("notify: mailer disabled")

// Dialer sends composed messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig describes the authenticated submission session.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// NewDialer builds a gomail dialer. Port 587 negotiates STARTTLS, 465 uses implicit TLS.
func NewDialer(cfg SMTPConfig) *gomail.Dialer {
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	return gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
}

// Mailer sends the e-book as an HTML email with the PDF attached.
type Mailer struct {
	Dialer  Dialer
	From    string
	Product ebook.Product
	Logger  zerolog.Logger
}

// SendEbook composes and submits the delivery email. Every failure is logged and
// returned; nothing is retried.
func (m *Mailer) SendEbook(ctx context.Context, to string) (err error) {
	if m == nil {
		return ErrDisabled
	}
	logger := m.Logger.With().Str("to", to).Logger()
	defer func() {
		switch {
		case errors.Is(err, ErrDisabled):
			logger.Warn().Msg("ebook not sent: mailer disabled")
		case err != nil:
			logger.Error().Err(err).Msg("ebook delivery failed")
		default:
			logger.Info().Msg("ebook delivered")
		}
	}()

	if m.Dialer == nil || strings.TrimSpace(m.From) == "" {
		return ErrDisabled
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("notify: recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := m.compose(to)
	if err != nil {
		return err
	}
	if err := m.Dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}

func (m *Mailer) compose(to string) (*gomail.Message, error) {
	path := strings.TrimSpace(m.Product.FilePath)
	if path == "" {
		return nil, errors.New("notify: attachment path not configured")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("notify: attachment unavailable: %w", err)
	}
	body, err := renderBody(m.Product)
	if err != nil {
		return nil, err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", Subject(m.Product))
	msg.SetBody("text/html", body)
	msg.Attach(path, gomail.Rename(m.Product.AttachmentName()))
	return msg, nil
}

// Subject is the delivery email subject line.
func Subject(p ebook.Product) string {
	return "Seu e-book: " + p.Title
}

var bodyTemplate = template.Must(template.New("ebook").Parse(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1 style="color: #4361ee;">Seu e-book está aqui! 🎉</h1>
    <p>Olá!</p>
    <p>Muito obrigado pela sua compra! Segue em anexo o seu e-book:</p>
    <p><strong>{{.Title}}</strong></p>
    <p>Esperamos que você aproveite a leitura e aprenda muito sobre as tecnologias de IA mais avançadas da atualidade.</p>
    <p>Se tiver qualquer dúvida, responda a este e-mail.</p>
    <p>Atenciosamente,<br>Equipe IA Trends</p>
  </div>
</body>
</html>`))

func renderBody(p ebook.Product) (string, error) {
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("notify: render body: %w", err)
	}
	return buf.String(), nil
}
