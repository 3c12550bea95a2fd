package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailSender sends transactional mail through an SMTP relay.
type MailSender struct {
	Addr string
	From string
	Auth smtp.Auth

	send sendMailFunc
	now  func() time.Time
}

// NewMailSender returns a sender for the relay at addr (host:port). PLAIN auth is used when username is set.
func NewMailSender(addr, from, username, password string) *MailSender {
	m := &MailSender{Addr: addr, From: from, send: smtp.SendMail, now: time.Now}
	if username != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		m.Auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

// Send delivers msg. net/smtp has no context support; ctx is only checked before dialing.
func (m *MailSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}
	if m.Addr == "" || m.From == "" {
		return fmt.Errorf("notify: smtp relay not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.send(m.Addr, m.Auth, m.From, msg.To, m.build(msg)); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}

func (m *MailSender) build(msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", headerValue(m.From))
	fmt.Fprintf(&b, "To: %s\r\n", headerValue(strings.Join(msg.To, ", ")))
	fmt.Fprintf(&b, "Subject: %s\r\n", headerValue(msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.Bytes()
}

// headerValue strips CR and LF so values cannot inject headers.
func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}
