// Package email manda la alerta por SMTP plano. No hay receipt de
// delivery en SMTP: sent es estado terminal de éxito para este canal.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/ports/channels"
)

var ErrNotConfigured = errors.New("smtp sender not configured")

const subject = "PetSOS emergency alert"

type Config struct {
	// Addr es host:port del relay, p.ej. "smtp.example.com:587".
	Addr string
	From string

	// Credenciales PLAIN; vacías = relay sin auth (dev).
	User     string
	Password string
}

// Sender implementa channels.Sender sobre net/smtp.
type Sender struct {
	cfg Config

	// sendMail inyectable para tests; default smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Addr) == "" || strings.TrimSpace(cfg.From) == "" {
		return nil, ErrNotConfigured
	}
	return &Sender{
		cfg:      cfg,
		sendMail: smtp.SendMail,
	}, nil
}

func (s *Sender) Send(ctx context.Context, address, content string) (channels.Receipt, error) {
	address = strings.TrimSpace(address)
	if !validAddress(address) {
		return channels.Receipt{}, channels.Permanent(fmt.Errorf("invalid email address: %q", address))
	}
	if err := ctx.Err(); err != nil {
		return channels.Receipt{}, channels.Transient(err)
	}

	var auth smtp.Auth
	if s.cfg.User != "" {
		host := s.cfg.Addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, host)
	}

	msg := buildMessage(s.cfg.From, address, subject, content)
	if err := s.sendMail(s.cfg.Addr, auth, s.cfg.From, []string{address}, msg); err != nil {
		// El relay no distingue bien permanente/transitorio acá;
		// tratamos todo como transient y dejamos que el retry cap corte.
		return channels.Receipt{}, channels.Transient(fmt.Errorf("smtp send: %w", err))
	}

	return channels.Receipt{}, nil
}

func validAddress(addr string) bool {
	at := strings.Index(addr, "@")
	return at > 0 && at < len(addr)-1 && !strings.ContainsAny(addr, " \t\r\n")
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
