package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Notifier delivers a message to an email address.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

type EmailService struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string) *EmailService {
	return &EmailService{
		dialer: gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword),
		from:   fromEmail,
	}
}

func (s *EmailService) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	return s.dialer.DialAndSend(m)
}

// LogNotifier writes messages to the log instead of sending them. It is used
// when no SMTP relay is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Send(_ context.Context, to, subject, _ string) error {
	n.Logger.Info("email not sent: smtp disabled", "to", to, "subject", subject)
	return nil
}

func welcomeMessage(name string) (subject, body string) {
	return "Welcome to the Application", fmt.Sprintf(`
		<h2>Welcome to the application, %s!</h2>
		<p>Your account has been created.</p>
	`, html.EscapeString(name))
}

func resetCodeMessage(code string) (subject, body string) {
	return "Password Reset Code", fmt.Sprintf(`
		<p>Your password reset code is: <strong>%s</strong></p>
		<p>If you did not request a password reset, you can ignore this email.</p>
	`, code)
}

func newCommentMessage(postTitle string) (subject, body string) {
	return "New Comment on Your Post", fmt.Sprintf(`
		<p>A new comment has been added to your post titled '%s'.</p>
	`, html.EscapeString(postTitle))
}
