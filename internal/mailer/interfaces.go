package mailer

type Service interface {
	SendActivationEmail(toEmail, toName, verifyURL, code string) error
	SendOTPEmail(toEmail, toName, code string) error
	SendPasswordResetEmail(toEmail, toName, resetURL string) error
	SendApprovalEmail(toEmail, toName, libraryName string) error
	SendRejectionEmail(toEmail, toName, reason string) error
}
