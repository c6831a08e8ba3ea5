// Package mail delivers operator notifications over SMTP.
package mail

import (
	"context"
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"banksync/internal/domain/notification"
)

// Mailer sends operator mail through a single SMTP account.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	sendTo string
}

var _ notification.Messenger = (*Mailer)(nil)

// NewMailer creates a mailer that authenticates as the given email
// address and delivers everything to one operator address.
func NewMailer(host string, port int, email, password, sendTo string) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(host, port, email, password),
		from:   email,
		sendTo: sendTo,
	}
}

// SendConsentLink mails the consent link the operator must follow to
// authenticate a bank authorization.
func (m *Mailer) SendConsentLink(ctx context.Context, link, bankID string, reminder bool) error {
	subject := fmt.Sprintf("New authorization to authenticate for bank %s", bankID)
	body := fmt.Sprintf("Hello %s,\n\nA new bank authorization was requested. Use the link below to authenticate it:\n%s", m.sendTo, link)
	if reminder {
		subject = fmt.Sprintf("Reminder: bank %s is still waiting for authentication", bankID)
		body = fmt.Sprintf("Hello %s,\n\nThe bank authorization below has not been authenticated yet. Use the link to complete it:\n%s", m.sendTo, link)
	}
	return m.send(ctx, subject, body)
}

// SendAlert mails a failure or status report to the operator.
func (m *Mailer) SendAlert(ctx context.Context, subject, body string) error {
	return m.send(ctx, subject, fmt.Sprintf("Hello %s,\n\n%s", m.sendTo, body))
}

func (m *Mailer) send(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.sendTo)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail %q to %s: %w", subject, m.sendTo, err)
	}
	return nil
}
