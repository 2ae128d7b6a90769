// Package notify delivers emails off the request path. Services publish
// notify.send events after their transaction commits; the worker picks them up
// over a queue subscription and hands them to the mailer.
package notify

import (
	"encoding/json"

	"github.com/cassaevelyn/smartlib/internal/mailer"
	"github.com/cassaevelyn/smartlib/pkg/events"
	"github.com/cassaevelyn/smartlib/pkg/logger"
)

const queueGroup = "notify-workers"

type Worker struct {
	bus    events.Subscriber
	mailer mailer.Service
}

func NewWorker(bus events.Subscriber, m mailer.Service) *Worker {
	return &Worker{bus: bus, mailer: m}
}

// Start registers the queue subscription. Delivery failures are logged, not
// retried; a resend request regenerates the secret anyway.
func (w *Worker) Start() error {
	return w.bus.QueueSubscribe(events.NotifySend, queueGroup, w.handle)
}

func (w *Worker) handle(msg *events.Message) {
	var evt events.NotificationEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		logger.Error("Dropping malformed notification event", "error", err)
		return
	}

	var err error
	switch evt.Kind {
	case events.NotifyKindActivation:
		err = w.mailer.SendActivationEmail(evt.Recipient, evt.Name, evt.Data["verify_url"], evt.Data["code"])
	case events.NotifyKindOTP:
		err = w.mailer.SendOTPEmail(evt.Recipient, evt.Name, evt.Data["code"])
	case events.NotifyKindPasswordReset:
		err = w.mailer.SendPasswordResetEmail(evt.Recipient, evt.Name, evt.Data["reset_url"])
	case events.NotifyKindApproval:
		err = w.mailer.SendApprovalEmail(evt.Recipient, evt.Name, evt.Data["library"])
	case events.NotifyKindRejection:
		err = w.mailer.SendRejectionEmail(evt.Recipient, evt.Name, evt.Data["reason"])
	default:
		logger.Warn("Unknown notification kind", "kind", evt.Kind)
		return
	}

	if err != nil {
		logger.Error("Failed to send notification email",
			"kind", evt.Kind,
			"recipient", evt.Recipient,
			"error", err,
		)
		return
	}

	logger.Debug("Notification email sent", "kind", evt.Kind, "recipient", evt.Recipient)
}
