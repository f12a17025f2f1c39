package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Host           string        `envconfig:"HOST" split_words:"true" required:"true"`
	Port           int           `envconfig:"PORT" split_words:"true" default:"465"`
	Username       string        `envconfig:"USERNAME" split_words:"true" required:"true"`
	Password       string        `envconfig:"PASSWORD" split_words:"true" required:"true"`
	From           string        `envconfig:"FROM" split_words:"true"`
	SupportAddress string        `envconfig:"SUPPORT_ADDRESS" split_words:"true" required:"true"`
	Timeout        time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

type sendFunc func(ctx context.Context, from string, to []string, msg []byte) error

// Mailer sends support ticket notifications over SMTP.
type Mailer struct {
	cfg  Config
	from string
	send sendFunc
	now  func() time.Time
}

func New(cfg Config) (*Mailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.SupportAddress) == "" {
		return nil, errors.New("support address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 465
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = strings.TrimSpace(cfg.Username)
	}

	m := &Mailer{cfg: cfg, from: from, now: time.Now}
	m.send = m.sendSMTP
	return m, nil
}

// NotifySupport emails the support inbox. The error is returned so callers can decide
// whether the ticket was actually raised.
func (m *Mailer) NotifySupport(ctx context.Context, userID string, issue string) error {
	msg := buildMessage(m.from, m.cfg.SupportAddress, "New Support Ticket",
		fmt.Sprintf("New support ticket created.\n\nUser ID: %s\n\nIssue:\n%s", userID, issue),
		m.now())
	if err := m.send(ctx, m.from, []string{m.cfg.SupportAddress}, msg); err != nil {
		return fmt.Errorf("send support email: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string, now time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func (m *Mailer) sendSMTP(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	if m.cfg.Port != 465 {
		return smtp.SendMail(addr, auth, from, to, msg)
	}

	// Port 465 speaks TLS from the first byte; net/smtp only does STARTTLS.
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: m.cfg.Timeout},
		Config:    &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(m.cfg.Timeout))
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
