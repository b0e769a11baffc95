package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"strings"
	"time"

	"eduops-notify/logger"
)

// Message is one email handed to the transport.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
}

// Transport delivers a single message to the external mail relay. The
// relay enforces its own per-minute and daily quota; quota rejections
// surface as transient errors.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// SMTPMailer sends mail through an SMTP relay with STARTTLS, the same
// way the operations account is configured in the dashboard.
type SMTPMailer struct {
	Host      string
	Port      string
	Username  string
	Password  string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// NewSMTPMailer builds a mailer from SMTP_* environment variables.
func NewSMTPMailer() *SMTPMailer {
	host := os.Getenv("SMTP_SERVER")
	if host == "" {
		host = "smtp.gmail.com"
	}
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	username := os.Getenv("SMTP_USERNAME")
	password := os.Getenv("SMTP_PASSWORD")
	fromEmail := os.Getenv("FROM_EMAIL")
	if fromEmail == "" {
		fromEmail = username
	}
	fromName := os.Getenv("FROM_NAME")
	if fromName == "" {
		fromName = "EduOps360 Operations"
	}

	if username == "" || password == "" {
		logger.Warning("SMTP credentials not configured. Email delivery will not work.")
	}

	return &SMTPMailer{
		Host:      host,
		Port:      port,
		Username:  username,
		Password:  password,
		FromEmail: fromEmail,
		FromName:  fromName,
		Timeout:   30 * time.Second,
	}
}

// Deliver sends one message. The whole exchange is bounded by the
// mailer timeout and the context deadline; a timeout is reported as a
// transient failure.
func (m *SMTPMailer) Deliver(ctx context.Context, msg Message) error {
	deadline := time.Now().Add(m.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	addr := net.JoinHostPort(m.Host, m.Port)
	conn, err := net.DialTimeout("tcp", addr, time.Until(deadline))
	if err != nil {
		return Transient("dial smtp relay", err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return Transient("set smtp deadline", err)
	}

	client, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		conn.Close()
		return classifySMTP("smtp handshake", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.Host}); err != nil {
			return classifySMTP("starttls", err)
		}
	}

	if m.Username != "" {
		auth := smtp.PlainAuth("", m.Username, m.Password, m.Host)
		if err := client.Auth(auth); err != nil {
			return classifySMTP("smtp auth", err)
		}
	}

	if err := client.Mail(m.FromEmail); err != nil {
		return classifySMTP("mail from", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return classifySMTP("rcpt to", err)
	}

	w, err := client.Data()
	if err != nil {
		return classifySMTP("smtp data", err)
	}
	if _, err := w.Write(m.buildMIME(msg)); err != nil {
		w.Close()
		return Transient("write message body", err)
	}
	if err := w.Close(); err != nil {
		return classifySMTP("finish message", err)
	}

	return client.Quit()
}

// buildMIME assembles a minimal HTML MIME message.
func (m *SMTPMailer) buildMIME(msg Message) []byte {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s <%s>\r\n", m.FromName, m.FromEmail))
	if msg.ToName != "" {
		b.WriteString(fmt.Sprintf("To: %s <%s>\r\n", msg.ToName, msg.To))
	} else {
		b.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	}
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	b.WriteString("\r\n")
	b.WriteString(msg.HTMLBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// classifySMTP maps an SMTP protocol error onto the delivery taxonomy.
// 421 and 450/451/452 are quota or temporary-rejection codes; other
// 4xx codes stay transient, 5xx codes are permanent.
func classifySMTP(stage string, err error) error {
	var tpErr *textproto.Error
	if ok := asTextprotoError(err, &tpErr); ok {
		switch {
		case tpErr.Code == 421 || (tpErr.Code >= 450 && tpErr.Code <= 452):
			// Tag quota rejections so callers can detect them with
			// errors.Is and apply mandatory backoff.
			return Transient(fmt.Sprintf("%s: relay quota or temporary rejection", stage), errors.Join(ErrRateLimited, err))
		case tpErr.Code >= 400 && tpErr.Code < 500:
			return Transient(stage, err)
		case tpErr.Code >= 500:
			return Permanent(stage, err)
		}
	}
	// Connection resets, timeouts and other transport errors are retryable.
	return Transient(stage, err)
}

func asTextprotoError(err error, target **textproto.Error) bool {
	for err != nil {
		if tp, ok := err.(*textproto.Error); ok {
			*target = tp
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
