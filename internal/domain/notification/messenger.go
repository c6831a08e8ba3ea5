// Package notification defines how the sync service reaches its operator.
// The service is unattended; consent links and failures have to go
// somewhere a human will see them.
package notification

import "context"

// Messenger delivers operator-facing messages.
// Implemented by the SMTP mailer in the infrastructure layer.
type Messenger interface {
	// SendConsentLink asks the operator to authenticate a bank
	// authorization. reminder marks re-sends for a requisition the
	// operator was already told about.
	SendConsentLink(ctx context.Context, link, bankID string, reminder bool) error

	// SendAlert reports a failure or anomaly that needs human attention.
	SendAlert(ctx context.Context, subject, body string) error
}
