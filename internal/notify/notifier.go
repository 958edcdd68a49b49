// Package notify delivers transactional mail. The rest of the system
// treats delivery as an external collaborator: a subject, a body, a
// recipient, and a single failure mode.
package notify

import (
	"context"
	"errors"
)

// ErrDeliveryFailed indicates the message could not be handed off to the
// mail transport.
var ErrDeliveryFailed = errors.New("notify: delivery failed")

// Notifier sends a single message to a single recipient.
type Notifier interface {
	Send(ctx context.Context, subject, body, to string) error
}
