package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTPConfig configures the submission relay
type SMTPConfig struct {
	Addr     string // host:port of the submission endpoint
	Username string
	Password string
	From     string // envelope and header From address
	FromName string // display name for the From header
	UseTLS   bool   // implicit TLS (465) instead of STARTTLS
	Timeout  time.Duration
}

// SMTPMailer delivers messages through an authenticated submission relay
type SMTPMailer struct {
	cfg    SMTPConfig
	signer *Signer // optional DKIM signer
	logger *slog.Logger
}

// NewSMTPMailer creates a new SMTP submission mailer
func NewSMTPMailer(cfg SMTPConfig, signer *Signer, logger *slog.Logger) *SMTPMailer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPMailer{cfg: cfg, signer: signer, logger: logger}
}

// Send assembles the RFC 5322 message, signs it when a DKIM signer is
// configured, and submits it. SMTP 4xx responses and network errors come
// back temporary; 5xx responses are permanent.
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	from := m.cfg.From
	if msg.From != "" {
		from = msg.From
	}

	raw, err := m.assemble(from, msg)
	if err != nil {
		return &DeliveryError{Temporary: false, Message: fmt.Sprintf("failed to assemble message: %v", err)}
	}

	if m.signer != nil {
		signed, err := m.signer.Sign(raw)
		if err != nil {
			// Signing trouble is local, not a property of the address
			return &DeliveryError{Temporary: true, Message: fmt.Sprintf("dkim signing failed: %v", err)}
		}
		raw = signed
	}

	if err := m.submit(ctx, from, msg.To, raw); err != nil {
		return classifyError(err)
	}

	m.logger.Debug("message submitted", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (m *SMTPMailer) submit(ctx context.Context, from, to string, raw []byte) error {
	var (
		client *smtp.Client
		err    error
	)
	if m.cfg.UseTLS {
		client, err = smtp.DialTLS(m.cfg.Addr, nil)
	} else {
		client, err = smtp.DialStartTLS(m.cfg.Addr, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", m.cfg.Addr, err)
	}
	defer client.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(m.cfg.Timeout)
	}
	client.CommandTimeout = time.Until(deadline)
	client.SubmissionTimeout = time.Until(deadline)

	if m.cfg.Username != "" {
		auth := sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.SendMail(from, []string{to}, bytes.NewReader(raw)); err != nil {
		return err
	}
	return client.Quit()
}

func (m *SMTPMailer) assemble(from string, msg *Message) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}

	fromName := m.cfg.FromName
	if msg.FromName != "" {
		fromName = msg.FromName
	}
	writeHeader("From", formatAddress(fromName, from))
	writeHeader("To", formatAddress(msg.ToName, msg.To))
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader("Date", time.Now().Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")

	if msg.HTML != "" {
		boundary := fmt.Sprintf("b-%d", time.Now().UnixNano())
		writeHeader("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
		buf.WriteString("\r\n")

		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(toCRLF(msg.Text))
		fmt.Fprintf(&buf, "\r\n--%s\r\n", boundary)
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(toCRLF(msg.HTML))
		fmt.Fprintf(&buf, "\r\n--%s--\r\n", boundary)
	} else {
		writeHeader("Content-Type", "text/plain; charset=utf-8")
		buf.WriteString("\r\n")
		buf.WriteString(toCRLF(msg.Text))
		buf.WriteString("\r\n")
	}

	return buf.Bytes(), nil
}

func classifyError(err error) error {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return &DeliveryError{
			Temporary: smtpErr.Temporary(),
			Message:   fmt.Sprintf("smtp %d: %s", smtpErr.Code, smtpErr.Message),
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &DeliveryError{Temporary: true, Message: err.Error()}
	}

	// Connection-level failures without a protocol response are retryable
	return &DeliveryError{Temporary: true, Message: err.Error()}
}

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), addr)
}

func toCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
