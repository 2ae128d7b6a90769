package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSendClient struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSendClient {
	m := &MailerSendClient{
		enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}

	return m
}

func (m *MailerSendClient) SendActivationEmail(toEmail, toName, verifyURL, code string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Activate your Smart Lib account"
	html := fmt.Sprintf(`
		<h2>Welcome to Smart Lib!</h2>
		<p>Hi %s,</p>
		<p>Please activate your account by clicking the link below:</p>
		<p><a href="%s" style="background-color: #4CAF50; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Activate Account</a></p>
		<p>Or use this activation code: <strong style="font-size: 24px;">%s</strong></p>
		<p>This link will expire in 24 hours.</p>
		<p>If you didn't create an account with us, please ignore this email.</p>
	`, toName, verifyURL, code)

	text := fmt.Sprintf("Activate your account by clicking this link: %s\n\nOr use this activation code: %s", verifyURL, code)

	return m.sendEmail(toEmail, toName, subject, text, html)
}

func (m *MailerSendClient) SendOTPEmail(toEmail, toName, code string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Your Smart Lib verification code"
	html := fmt.Sprintf(`
		<h2>Your Verification Code</h2>
		<p>Your code is: <strong style="font-size: 24px; color: #4CAF50;">%s</strong></p>
		<p>Enter this code to verify your email address.</p>
		<p>If you didn't request a code, please ignore this email.</p>
	`, code)

	text := fmt.Sprintf("Your verification code is: %s", code)

	return m.sendEmail(toEmail, toName, subject, text, html)
}

func (m *MailerSendClient) SendPasswordResetEmail(toEmail, toName, resetURL string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Reset your Smart Lib password"
	html := fmt.Sprintf(`
		<h2>Password Reset</h2>
		<p>Hi %s,</p>
		<p>We received a request to reset your password. Click the link below to choose a new one:</p>
		<p><a href="%s" style="background-color: #4CAF50; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Reset Password</a></p>
		<p>This link will expire in 2 hours.</p>
		<p>If you didn't request a reset, you can safely ignore this email.</p>
	`, toName, resetURL)

	text := fmt.Sprintf("Reset your password by clicking this link: %s", resetURL)

	return m.sendEmail(toEmail, toName, subject, text, html)
}

func (m *MailerSendClient) SendApprovalEmail(toEmail, toName, libraryName string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Your library access was approved"
	html := fmt.Sprintf(`
		<h2>Access Approved</h2>
		<p>Hi %s,</p>
		<p>Your access request for <strong>%s</strong> has been approved. You can now sign in and book seats.</p>
	`, toName, libraryName)

	text := fmt.Sprintf("Your access request for %s has been approved.", libraryName)

	return m.sendEmail(toEmail, toName, subject, text, html)
}

func (m *MailerSendClient) SendRejectionEmail(toEmail, toName, reason string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Your library access request"
	html := fmt.Sprintf(`
		<h2>Access Request Update</h2>
		<p>Hi %s,</p>
		<p>Unfortunately your library access request was not approved.</p>
		<p>Reason: %s</p>
		<p>You may contact the library administration for more details.</p>
	`, toName, reason)

	text := fmt.Sprintf("Your library access request was not approved. Reason: %s", reason)

	return m.sendEmail(toEmail, toName, subject, text, html)
}

func (m *MailerSendClient) sendEmail(toEmail, toName, subject, text, html string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)

	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}
	if strings.TrimSpace(html) != "" {
		msg.SetHTML(html)
	}

	_, err := m.client.Email.Send(ctx, msg)
	return err
}
