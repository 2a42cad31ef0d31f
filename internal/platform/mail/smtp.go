package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// Config carries SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Client sends transactional mail over SMTP. Plain connections with
// STARTTLS upgrade when the server offers it, which covers both Mailpit
// in development and authenticated relays in production.
type Client struct {
	host string
	addr string
	from string
	auth smtp.Auth
}

// New creates a new SMTP client.
func New(cfg Config) *Client {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &Client{
		host: cfg.Host,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
		auth: auth,
	}
}

// Send delivers a single plain-text message.
func (c *Client) Send(ctx context.Context, to, subject, body string) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("platform/mail: dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("platform/mail: handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.host}); err != nil {
			return fmt.Errorf("platform/mail: starttls: %w", err)
		}
	}
	if c.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(c.auth); err != nil {
				return fmt.Errorf("platform/mail: auth: %w", err)
			}
		}
	}

	if err := client.Mail(c.from); err != nil {
		return fmt.Errorf("platform/mail: mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("platform/mail: rcpt to: %w", err)
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("platform/mail: data: %w", err)
	}
	if _, err := writer.Write(message(c.from, to, subject, body)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("platform/mail: write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("platform/mail: close data: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("platform/mail: quit: %w", err)
	}
	return nil
}

func message(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
