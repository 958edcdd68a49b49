package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// SMTPNotifier delivers mail through a plain SMTP relay such as a local
// Mailpit or a provider edge.
type SMTPNotifier struct {
	host string
	port int
	from string
}

// NewSMTPNotifier constructs a notifier for the given relay.
func NewSMTPNotifier(host string, port int, from string) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from}
}

// Send submits the message. Context cancellation is honored up to dialing;
// an in-flight SMTP exchange runs to completion.
func (n *SMTPNotifier) Send(ctx context.Context, subject, body, to string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	addr := net.JoinHostPort(n.host, strconv.Itoa(n.port))
	msg := buildMessage(n.from, to, subject, body)

	if err := smtp.SendMail(addr, nil, n.from, []string{to}, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
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
	b.WriteString("\r\n")
	return []byte(b.String())
}
