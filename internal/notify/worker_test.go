package notify_test

import (
	"encoding/json"
	"testing"

	"github.com/cassaevelyn/smartlib/internal/notify"
	"github.com/cassaevelyn/smartlib/pkg/events"
)

type fakeBus struct {
	subject string
	queue   string
	handler func(msg *events.Message)
}

func (f *fakeBus) Subscribe(subject string, handler func(msg *events.Message)) error {
	f.subject = subject
	f.handler = handler
	return nil
}

func (f *fakeBus) QueueSubscribe(subject, queue string, handler func(msg *events.Message)) error {
	f.subject = subject
	f.queue = queue
	f.handler = handler
	return nil
}

func (f *fakeBus) Close() error { return nil }

func (f *fakeBus) deliver(t *testing.T, evt events.NotificationEvent) {
	t.Helper()
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	f.handler(&events.Message{Subject: f.subject, Data: data})
}

type recordingMailer struct {
	calls []string
	to    string
	data  []string
}

func (r *recordingMailer) record(kind, to string, data ...string) error {
	r.calls = append(r.calls, kind)
	r.to = to
	r.data = data
	return nil
}

func (r *recordingMailer) SendActivationEmail(toEmail, toName, verifyURL, code string) error {
	return r.record("activation", toEmail, verifyURL, code)
}

func (r *recordingMailer) SendOTPEmail(toEmail, toName, code string) error {
	return r.record("otp", toEmail, code)
}

func (r *recordingMailer) SendPasswordResetEmail(toEmail, toName, resetURL string) error {
	return r.record("password_reset", toEmail, resetURL)
}

func (r *recordingMailer) SendApprovalEmail(toEmail, toName, libraryName string) error {
	return r.record("approval", toEmail, libraryName)
}

func (r *recordingMailer) SendRejectionEmail(toEmail, toName, reason string) error {
	return r.record("rejection", toEmail, reason)
}

func TestWorkerDispatchesByKind(t *testing.T) {
	bus := &fakeBus{}
	mail := &recordingMailer{}
	w := notify.NewWorker(bus, mail)

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if bus.subject != events.NotifySend {
		t.Fatalf("subscribed to %q, want %q", bus.subject, events.NotifySend)
	}
	if bus.queue == "" {
		t.Fatal("expected a queue group subscription")
	}

	bus.deliver(t, events.NotificationEvent{
		Kind:      events.NotifyKindActivation,
		Recipient: "ali@example.com",
		Name:      "Ali",
		Data:      map[string]string{"verify_url": "https://app/verify?t=abc", "code": "123456"},
	})

	if len(mail.calls) != 1 || mail.calls[0] != "activation" {
		t.Fatalf("calls = %v, want [activation]", mail.calls)
	}
	if mail.to != "ali@example.com" {
		t.Errorf("to = %q", mail.to)
	}
	if len(mail.data) != 2 || mail.data[1] != "123456" {
		t.Errorf("data = %v", mail.data)
	}

	bus.deliver(t, events.NotificationEvent{
		Kind:      events.NotifyKindPasswordReset,
		Recipient: "ali@example.com",
		Name:      "Ali",
		Data:      map[string]string{"reset_url": "https://app/reset?t=xyz"},
	})

	if len(mail.calls) != 2 || mail.calls[1] != "password_reset" {
		t.Fatalf("calls = %v, want password_reset appended", mail.calls)
	}
}

func TestWorkerIgnoresUnknownKind(t *testing.T) {
	bus := &fakeBus{}
	mail := &recordingMailer{}
	w := notify.NewWorker(bus, mail)

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	bus.deliver(t, events.NotificationEvent{Kind: "carrier_pigeon", Recipient: "x@example.com"})

	if len(mail.calls) != 0 {
		t.Errorf("unexpected mailer calls: %v", mail.calls)
	}
}

func TestWorkerIgnoresMalformedPayload(t *testing.T) {
	bus := &fakeBus{}
	mail := &recordingMailer{}
	w := notify.NewWorker(bus, mail)

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	bus.handler(&events.Message{Subject: events.NotifySend, Data: []byte("{not json")})

	if len(mail.calls) != 0 {
		t.Errorf("unexpected mailer calls: %v", mail.calls)
	}
}
