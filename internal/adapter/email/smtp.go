// Package email delivers outbound mail over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/TenantForge/internal/port/mailer"
)

// SMTPConfig holds the configuration for SMTP connections. Password is
// resolved per send so a vault reload rotates it.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password func() string
}

// Sender implements mailer.Sender.
type Sender struct {
	cfg SMTPConfig
	now func() time.Time
}

var _ mailer.Sender = (*Sender)(nil)

// NewSender creates an SMTP sender. An empty host yields a sender that
// always returns mailer.ErrNotConfigured.
func NewSender(cfg SMTPConfig) *Sender {
	if cfg.Password == nil {
		cfg.Password = func() string { return "" }
	}
	return &Sender{cfg: cfg, now: time.Now}
}

// Send delivers msg. The context deadline bounds dial and the whole
// conversation.
func (s *Sender) Send(ctx context.Context, msg mailer.Message) error {
	if s.cfg.Host == "" {
		return mailer.ErrNotConfigured
	}
	body, err := buildMessage(s.cfg.From, msg, s.now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	// Unblock the conversation if ctx is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if pw := s.cfg.Password(); pw != "" {
		user := s.cfg.Username
		if user == "" {
			user = s.cfg.From
		}
		if err := c.Auth(smtp.PlainAuth("", user, pw, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return c.Quit()
}

// buildMessage renders a multipart/alternative message with a text part and,
// when present, an HTML part.
func buildMessage(from string, msg mailer.Message, now time.Time) ([]byte, error) {
	if strings.ContainsAny(msg.To+msg.Subject, "\r\n") {
		return nil, fmt.Errorf("email: header injection in recipient or subject")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := textproto.MIMEHeader{}
	h.Set("From", from)
	h.Set("To", msg.To)
	h.Set("Subject", msg.Subject)
	h.Set("Date", now.Format(time.RFC1123Z))
	h.Set("Message-ID", "<"+uuid.NewString()+"@tenantforge>")
	h.Set("MIME-Version", "1.0")
	h.Set("Content-Type", "multipart/alternative; boundary="+mw.Boundary())

	var head bytes.Buffer
	for _, k := range []string{"From", "To", "Subject", "Date", "Message-ID", "MIME-Version", "Content-Type"} {
		fmt.Fprintf(&head, "%s: %s\r\n", k, h.Get(k))
	}
	head.WriteString("\r\n")

	parts := []struct{ ctype, content string }{{"text/plain; charset=UTF-8", msg.Text}}
	if msg.HTML != "" {
		parts = append(parts, struct{ ctype, content string }{"text/html; charset=UTF-8", msg.HTML})
	}
	for _, p := range parts {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.ctype},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, fmt.Errorf("email: create part: %w", err)
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("email: encode part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("email: encode part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("email: close multipart: %w", err)
	}

	return append(head.Bytes(), buf.Bytes()...), nil
}
